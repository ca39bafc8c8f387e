// Package storagetest holds fixtures shared by the profile store drivers' tests.
package storagetest

import (
	"time"

	memorymodel "github.com/zhouzirui/z-tavern-rpg/backend/internal/model/memory"
)

// SampleProfile returns a profile that populates every field, with UTC
// timestamps so it survives a JSON round trip unchanged.
func SampleProfile() memorymodel.Profile {
	at := time.Date(2025, time.April, 2, 9, 30, 0, 0, time.UTC)
	profile := memorymodel.NewProfile()
	profile.PlayerInfo = memorymodel.PlayerInfo{Name: "林", Description: "年轻的铁匠", Personality: "谨慎", Background: "北境"}
	profile.KeyFacts = []memorymodel.KeyFact{
		{Fact: "怕水", Scene: "第1幕", Timestamp: at},
		{Fact: "欠了 Bob 十枚金币", Scene: "第2幕", Timestamp: at.Add(time.Hour)},
	}
	profile.Relationships["Bob"] = memorymodel.Relationship{Relationship: "债主", TrustLevel: 3, RecentInteractions: []string{"借钱", "争吵"}}
	profile.Relationships["Aria"] = memorymodel.Relationship{Relationship: "朋友", TrustLevel: 8, RecentInteractions: []string{}}
	profile.GoalsAndPromises = []memorymodel.Goal{
		{Kind: memorymodel.KindPromise, Content: "还钱", RelatedNpc: "Bob", Status: memorymodel.StatusActive, Scene: "第2幕"},
		{Kind: memorymodel.KindGoal, Content: "离开小镇", Status: memorymodel.StatusFailed, Scene: "第1幕"},
	}
	profile.ImportantEvents = []memorymodel.ImportantEvent{{Event: "酒馆失火", Scene: "第2幕", Impact: "失去住处", Timestamp: at}}
	profile.Inventory = []string{"锤子", "钥匙"}
	profile.Skills = []string{"锻造"}
	profile.Secrets = []string{"知道镇长的秘密"}
	profile.UpdatedAt = at.Add(2 * time.Hour)
	return profile
}
