package domain

import (
	"fmt"
	"strings"
)

// Platform 是所有输出行的来源标记。
const Platform = "steam"

// Source 是一个被采集的游戏条目（AppID + 展示名 + 变现模式描述）。
//
// 约束：运行期只读；由配置在进程启动时给出，不在运行中增删。
type Source struct {
	AppID int    `yaml:"appid" json:"appid"`
	Name  string `yaml:"name" json:"name"`
	Model string `yaml:"model" json:"monetization_model"`
}

func (s Source) String() string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Sprintf("app %d", s.AppID)
	}
	return fmt.Sprintf("%s (%d)", name, s.AppID)
}

// DefaultSources 返回内置的采集列表（变现要素较重的热门 F2P 作品）。
// 每次调用返回新切片，调用方可以自由修改。
func DefaultSources() []Source {
	return []Source{
		{AppID: 570, Name: "Dota 2", Model: "cosmetics, battle pass, event monetization"},
		{AppID: 730, Name: "Counter-Strike 2", Model: "cosmetics (cases/skins), keys"},
		{AppID: 440, Name: "Team Fortress 2", Model: "cosmetics, crates/keys"},
		{AppID: 230410, Name: "Warframe", Model: "cosmetics, boosters, premium currency"},
		{AppID: 238960, Name: "Path of Exile", Model: "cosmetics, stash tabs, MTX"},
		{AppID: 1085660, Name: "Destiny 2", Model: "expansions, season pass, cosmetics, silver"},
		{AppID: 1172470, Name: "Apex Legends", Model: "battle pass, cosmetics, event packs"},
		{AppID: 578080, Name: "PUBG: BATTLEGROUNDS", Model: "cosmetics, passes, crates"},
		{AppID: 1599340, Name: "Lost Ark", Model: "cosmetics, boosters, crystalline aura"},
	}
}

// ValidateSources 检查 AppID 为正且不重复。
func ValidateSources(srcs []Source) error {
	if len(srcs) == 0 {
		return fmt.Errorf("sources 不能为空")
	}
	seen := make(map[int]struct{}, len(srcs))
	for i, s := range srcs {
		if s.AppID <= 0 {
			return fmt.Errorf("sources[%d].appid 必须为正整数，实际是 %d", i, s.AppID)
		}
		if _, ok := seen[s.AppID]; ok {
			return fmt.Errorf("重复的 appid：%d", s.AppID)
		}
		seen[s.AppID] = struct{}{}
	}
	return nil
}
