package domain

import "strings"

// knownGameAppIDs 维护“游戏名 → AppID”的静态映射。
// 页面没有可靠的 data-appid 时，靠 “Game: <名字>” 文本反查。
var knownGameAppIDs = map[string]string{
	"Project Zomboid": "108600",
}

// AppIDForGame 按游戏名反查 AppID（忽略大小写与首尾空白）。
func AppIDForGame(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for k, v := range knownGameAppIDs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// GameNameForApp 按 AppID 查游戏名；未知时原样返回 AppID。
// 返回值用作 mods/ 下的目录名，必须永远非空。
func GameNameForApp(appID string) string {
	for k, v := range knownGameAppIDs {
		if v == appID {
			return k
		}
	}
	return appID
}
