package discuz

import "net/url"

// checkinPlugin describes one known check-in plugin variant: where it lives
// and how to build its submission form. Candidates are probed in the fixed
// order of the list below so repeated runs against an unchanged site always
// select the same plugin.
type checkinPlugin struct {
	ID   string
	Path string
	Form func(formhash string) url.Values
}

var checkinPlugins = []checkinPlugin{
	{
		ID:   "k_misign",
		Path: "/plugin.php?id=k_misign:sign",
		Form: func(formhash string) url.Values {
			return url.Values{
				"formhash":  {formhash},
				"operation": {"qiandao"},
				"format":    {"empty"},
			}
		},
	},
	{
		ID:   "dsu_paulsign",
		Path: "/plugin.php?id=dsu_paulsign:sign",
		Form: func(formhash string) url.Values {
			return url.Values{
				"formhash":  {formhash},
				"qdmode":    {"3"},
				"todaysay":  {""},
				"qdxq":      {"kx"},
				"fastreply": {"0"},
			}
		},
	},
	{
		ID:   "dc_signin",
		Path: "/plugin.php?id=dc_signin:sign",
		Form: func(formhash string) url.Values {
			return url.Values{
				"formhash":   {formhash},
				"signsubmit": {"yes"},
			}
		},
	},
	{
		ID:   "fx_checkin",
		Path: "/plugin.php?id=fx_checkin:checkin",
		Form: func(formhash string) url.Values {
			return url.Values{
				"formhash": {formhash},
			}
		},
	},
}

// Response marker sets for classifying a check-in submission. Already-signed
// phrasings are checked before success: several plugins echo "签到成功" inside
// their "already signed today" notice.
var (
	checkinAlreadyMarkers = []string{
		"已签到",
		"您今天已经签到",
		"今日已签",
		"已经签到",
	}
	checkinSuccessMarkers = []string{
		"签到成功",
		"恭喜",
		"累计签到",
		"签到完成",
	}
	pluginMissingMarkers = []string{
		"插件不存在",
		"未定义操作",
		"Plugin not found",
		"对不起，您无权进行此操作",
	}
)

// replySuccessMarkers confirm a reply submission landed
var replySuccessMarkers = []string{
	"发布成功",
	"回帖成功",
	"非常感谢",
	"查看自己的帖子",
}
