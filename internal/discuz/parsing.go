// Package discuz speaks a Discuz-style forum's login, check-in, and reply
// protocols over a transport client. Endpoints and response markers vary by
// installation; the probing lists here cover the common plugin variants.
package discuz

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	formhashInputRe = regexp.MustCompile(`name="formhash"\s+value="([a-zA-Z0-9]{8})"`)
	formhashParamRe = regexp.MustCompile(`formhash=([a-zA-Z0-9]{8})`)

	forumPageRe = regexp.MustCompile(`/forum\.php\?mod=forumdisplay&fid=\d+&amp;page=(\d+)`)
	lastPageRe  = regexp.MustCompile(`class="last">\.\.\.\s*(\d+)<`)

	userGroupRe = regexp.MustCompile(`用户组[^<]*?<a[^>]*>([^<]+)</a>`)

	normalThreadRe = regexp.MustCompile(`<tbody\s+id="normalthread_(\d+)">([\s\S]*?)</tbody>`)
	viewThreadRe   = regexp.MustCompile(`href="((?:/)?forum\.php\?mod=viewthread(?:&|&amp;)tid=(\d+)[^"]*)"`)
	staticThreadRe = regexp.MustCompile(`href="(/thread-(\d+)-\d+-\d+\.html)"`)
)

var loggedInMarkers = []string{"退出", "我的", "用户组", "控制面板"}

var badThreadMarkers = []string{"不存在", "无权", "删除", "错误", "小黑屋", "抱歉"}

// Formhash extracts the anti-CSRF token Discuz embeds in every form
func Formhash(html string) string {
	if m := formhashInputRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	if m := formhashParamRe.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// LoggedIn reports whether the page carries an authenticated marker
func LoggedIn(html string) bool {
	for _, marker := range loggedInMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// BadThread reports whether a thread page is deleted, restricted, or gone
func BadThread(html string) bool {
	if html == "" {
		return true
	}
	for _, marker := range badThreadMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// UserGroup parses the member's user group from a space page
func UserGroup(html string) string {
	if m := userGroupRe.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ProfileStat parses one numeric credit counter from a space page by its
// list label, e.g. 积分 or 金钱. Returns nil when the label is absent.
func ProfileStat(html, label string) *int {
	re := regexp.MustCompile(`<li><em>\s*` + regexp.QuoteMeta(label) + `\s*</em>\s*([0-9]+)\s*</li>`)
	m := re.FindStringSubmatch(html)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// ForumMaxPage parses the highest page number visible on a forum list page,
// defaulting to 1.
func ForumMaxPage(html string) int {
	last := 1
	if m := forumPageRe.FindStringSubmatch(html); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > last {
			last = n
		}
	}
	if m := lastPageRe.FindStringSubmatch(html); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > last {
			last = n
		}
	}
	return last
}

// Thread is a (tid, href) pair parsed from a forum list page
type Thread struct {
	TID  int
	Href string
}

// Threads parses thread links from a forum list page. Several template
// shapes are tried from most to least specific.
func Threads(html string) []Thread {
	var threads []Thread

	for _, block := range normalThreadRe.FindAllStringSubmatch(html, -1) {
		tid, err := strconv.Atoi(block[1])
		if err != nil {
			continue
		}
		if m := viewThreadRe.FindStringSubmatch(block[2]); m != nil {
			threads = append(threads, Thread{TID: tid, Href: normalizeHref(m[1])})
		}
	}

	if len(threads) == 0 {
		for _, m := range viewThreadRe.FindAllStringSubmatch(html, -1) {
			tid, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			threads = append(threads, Thread{TID: tid, Href: normalizeHref(m[1])})
		}
	}

	if len(threads) == 0 {
		for _, m := range staticThreadRe.FindAllStringSubmatch(html, -1) {
			tid, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			threads = append(threads, Thread{TID: tid, Href: m[1]})
		}
	}

	seen := make(map[Thread]bool, len(threads))
	out := threads[:0]
	for _, th := range threads {
		if seen[th] {
			continue
		}
		seen[th] = true
		out = append(out, th)
	}
	return out
}

func normalizeHref(href string) string {
	href = strings.ReplaceAll(href, "&amp;", "&")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return href
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
