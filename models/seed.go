package models

// SeedBadge pairs a badge type with the conditions that unlock it.
type SeedBadge struct {
	Type       BadgeType
	Conditions []BadgeCondition
}

// DefaultBadgeSet is the starter catalogue, inserted at boot when the
// badge_types table has no row with the same code.
var DefaultBadgeSet = []SeedBadge{
	{
		Type: BadgeType{
			Code:        "seven-day-starter",
			Name:        "7-Day Starter",
			Description: "Checked in on 7 different days within a month",
			Rarity:      "common",
		},
		Conditions: []BadgeCondition{
			{ConditionType: ConditionDailyCheckin, TargetValue: 7, Metadata: JSONMap{"days": 30}},
		},
	},
	{
		Type: BadgeType{
			Code:        "streak-master",
			Name:        "Streak Master",
			Description: "Kept a 14-day check-in streak alive",
			Rarity:      "rare",
		},
		Conditions: []BadgeCondition{
			{ConditionType: ConditionConsecutiveDays, TargetValue: 14},
		},
	},
	{
		Type: BadgeType{
			Code:        "data-devotee",
			Name:        "Data Devotee",
			Description: "Logged 100 health data entries",
			Rarity:      "common",
		},
		Conditions: []BadgeCondition{
			{ConditionType: ConditionTotalActivities, TargetValue: 100, Metadata: JSONMap{"activityType": "data_entry"}},
		},
	},
	{
		Type: BadgeType{
			Code:        "wellness-elite",
			Name:        "Wellness Elite",
			Description: "Held an average health score of 90 over a month",
			Rarity:      "epic",
		},
		Conditions: []BadgeCondition{
			{ConditionType: ConditionHealthScore, TargetValue: 90, Metadata: JSONMap{"timeRange": 30}},
		},
	},
	{
		Type: BadgeType{
			Code:        "million-steps",
			Name:        "Million Steps",
			Description: "Walked a million steps, all time",
			Rarity:      "legendary",
			MaxSupply:   1000,
		},
		Conditions: []BadgeCondition{
			{ConditionType: ConditionMilestone, TargetValue: 1000000, Metadata: JSONMap{"field": "steps"}},
		},
	},
}
