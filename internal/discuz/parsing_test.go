package discuz

import "testing"

func TestFormhashFromInput(t *testing.T) {
	html := `<input type="hidden" name="formhash" value="abc12345" />`
	if got := Formhash(html); got != "abc12345" {
		t.Errorf("Formhash = %q, want abc12345", got)
	}
}

func TestFormhashFromURL(t *testing.T) {
	html := `<a href="/member.php?mod=logging&action=login&formhash=1a2b3c4d">Login</a>`
	if got := Formhash(html); got != "1a2b3c4d" {
		t.Errorf("Formhash = %q, want 1a2b3c4d", got)
	}
}

func TestFormhashMissing(t *testing.T) {
	if got := Formhash("<html></html>"); got != "" {
		t.Errorf("Formhash = %q, want empty", got)
	}
}

func TestLoggedIn(t *testing.T) {
	if !LoggedIn("<div>退出</div>") {
		t.Error("logout link should count as logged in")
	}
	if LoggedIn("<div>欢迎游客</div>") {
		t.Error("guest page should not count as logged in")
	}
}

func TestForumMaxPage(t *testing.T) {
	html1 := `<a href="/forum.php?mod=forumdisplay&fid=64&amp;page=12">12</a>`
	if got := ForumMaxPage(html1); got < 12 {
		t.Errorf("ForumMaxPage = %d, want >= 12", got)
	}
	html2 := `<span class="last">... 8</span>`
	if got := ForumMaxPage(html2); got < 8 {
		t.Errorf("ForumMaxPage = %d, want >= 8", got)
	}
	if got := ForumMaxPage(""); got != 1 {
		t.Errorf("ForumMaxPage(empty) = %d, want 1", got)
	}
}

func TestThreadsNormalThreadBlock(t *testing.T) {
	html := `<tbody id="normalthread_123">
	  <tr><td>
	    <a class="xst" href="/forum.php?mod=viewthread&amp;tid=123&amp;extra=page%3D1">Title</a>
	  </td></tr>
	</tbody>`
	threads := Threads(html)
	want := Thread{TID: 123, Href: "/forum.php?mod=viewthread&tid=123&extra=page%3D1"}
	found := false
	for _, th := range threads {
		if th == want {
			found = true
		}
	}
	if !found {
		t.Errorf("Threads = %v, want to contain %v", threads, want)
	}
}

func TestThreadsStaticLinks(t *testing.T) {
	html := `<a href="/thread-456-1-1.html">Title</a>`
	threads := Threads(html)
	if len(threads) != 1 || threads[0].TID != 456 {
		t.Errorf("Threads = %v, want single tid 456", threads)
	}
}

func TestThreadsDeduplicates(t *testing.T) {
	html := `<a href="/thread-9-1-1.html">A</a><a href="/thread-9-1-1.html">A again</a>`
	if threads := Threads(html); len(threads) != 1 {
		t.Errorf("Threads = %v, want deduplicated single entry", threads)
	}
}

func TestBadThread(t *testing.T) {
	if !BadThread("抱歉，您无权访问") {
		t.Error("restricted page should be bad")
	}
	if BadThread("正常内容") {
		t.Error("normal page should not be bad")
	}
	if !BadThread("") {
		t.Error("empty page should be bad")
	}
}
