package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MergeError reports a delta that cannot be applied. The profile passed to
// Merge is left untouched.
type MergeError struct {
	Reason string
}

func (e *MergeError) Error() string {
	return "merge memory delta: " + e.Reason
}

var goalKindAliases = map[string]GoalKind{
	"goal":    KindGoal,
	"目标":      KindGoal,
	"promise": KindPromise,
	"承诺":      KindPromise,
}

var goalStatusAliases = map[string]GoalStatus{
	"":          StatusActive,
	"active":    StatusActive,
	"进行中":       StatusActive,
	"completed": StatusCompleted,
	"complete":  StatusCompleted,
	"已完成":       StatusCompleted,
	"完成":        StatusCompleted,
	"failed":    StatusFailed,
	"失败":        StatusFailed,
	"已失败":       StatusFailed,
}

// Merge applies delta to a copy of profile and returns the copy. sceneLabel
// stamps appended facts, events and goals; now stamps facts and events.
// Validation runs before any field is touched, so a failing delta changes
// nothing.
func Merge(profile Profile, delta Delta, now time.Time, sceneLabel string) (Profile, error) {
	goals, err := validateDelta(delta, sceneLabel)
	if err != nil {
		return profile, err
	}

	out := profile.Clone()

	mergePlayerInfo(&out.PlayerInfo, delta.PlayerInfo)

	for _, entry := range delta.NewKeyFacts {
		if IsNoValue(entry.Fact) {
			continue
		}
		out.KeyFacts = append(out.KeyFacts, KeyFact{
			Fact:      strings.TrimSpace(entry.Fact),
			Scene:     sceneLabel,
			Timestamp: now,
		})
	}

	for _, name := range sortedKeys(delta.RelationshipUpdates) {
		key := strings.TrimSpace(name)
		out.Relationships[key] = mergeRelationship(out.Relationships[key], hasRelationship(out, key), delta.RelationshipUpdates[name])
	}

	out.GoalsAndPromises = append(out.GoalsAndPromises, goals...)

	for _, entry := range delta.NewImportantEvents {
		if IsNoValue(entry.Event) {
			continue
		}
		event := ImportantEvent{
			Event:     strings.TrimSpace(entry.Event),
			Scene:     sceneLabel,
			Timestamp: now,
		}
		if !IsNoValue(entry.Impact) {
			event.Impact = strings.TrimSpace(entry.Impact)
		}
		out.ImportantEvents = append(out.ImportantEvents, event)
	}

	out.Inventory = union(out.Inventory, delta.NewInventory)
	out.Skills = union(out.Skills, delta.NewSkills)
	out.Secrets = union(out.Secrets, delta.NewSecrets)

	out.UpdatedAt = now
	return out, nil
}

func validateDelta(delta Delta, sceneLabel string) ([]Goal, error) {
	for name := range delta.RelationshipUpdates {
		if strings.TrimSpace(name) == "" {
			return nil, &MergeError{Reason: "relationship update without npc name"}
		}
	}

	goals := make([]Goal, 0, len(delta.NewGoalsAndPromises))
	for i, entry := range delta.NewGoalsAndPromises {
		kind, ok := goalKindAliases[strings.ToLower(strings.TrimSpace(entry.Kind))]
		if !ok {
			return nil, &MergeError{Reason: fmt.Sprintf("goal %d has unknown type %q", i, entry.Kind)}
		}
		status, ok := goalStatusAliases[strings.ToLower(strings.TrimSpace(entry.Status))]
		if !ok {
			return nil, &MergeError{Reason: fmt.Sprintf("goal %d has unknown status %q", i, entry.Status)}
		}
		if IsNoValue(entry.Content) {
			return nil, &MergeError{Reason: fmt.Sprintf("goal %d has no content", i)}
		}
		goal := Goal{
			Kind:    kind,
			Content: strings.TrimSpace(entry.Content),
			Status:  status,
			Scene:   sceneLabel,
		}
		if !IsNoValue(entry.RelatedNpc) {
			goal.RelatedNpc = strings.TrimSpace(entry.RelatedNpc)
		}
		goals = append(goals, goal)
	}
	return goals, nil
}

func mergePlayerInfo(info *PlayerInfo, update PlayerInfoUpdate) {
	overwrite := func(field *string, value string) {
		if !IsNoValue(value) {
			*field = strings.TrimSpace(value)
		}
	}
	overwrite(&info.Name, update.Name)
	overwrite(&info.Description, update.Description)
	overwrite(&info.Personality, update.Personality)
	overwrite(&info.Background, update.Background)
}

func hasRelationship(p Profile, name string) bool {
	_, ok := p.Relationships[name]
	return ok
}

func mergeRelationship(current Relationship, exists bool, update RelationshipUpdate) Relationship {
	if !exists {
		current = Relationship{
			Relationship:       DefaultRelationship,
			TrustLevel:         DefaultTrustLevel,
			RecentInteractions: []string{},
		}
	}
	if !IsNoValue(update.Relationship) {
		current.Relationship = strings.TrimSpace(update.Relationship)
	}
	if update.TrustLevel != nil {
		current.TrustLevel = ClampTrust(int(*update.TrustLevel))
	}

	interactions := append(append([]string{}, current.RecentInteractions...), update.Interactions()...)
	if len(interactions) > MaxRecentInteractions {
		interactions = interactions[len(interactions)-MaxRecentInteractions:]
	}
	current.RecentInteractions = interactions
	return current
}

// ClampTrust bounds a trust level to [MinTrustLevel, MaxTrustLevel].
func ClampTrust(level int) int {
	if level < MinTrustLevel {
		return MinTrustLevel
	}
	if level > MaxTrustLevel {
		return MaxTrustLevel
	}
	return level
}

// union appends unseen, non-blank items while keeping existing order.
func union(existing, additions []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(additions))
	for _, item := range existing {
		seen[item] = struct{}{}
	}
	for _, item := range additions {
		if IsNoValue(item) {
			continue
		}
		item = strings.TrimSpace(item)
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		existing = append(existing, item)
	}
	return existing
}

func sortedKeys(updates map[string]RelationshipUpdate) []string {
	keys := make([]string, 0, len(updates))
	for name := range updates {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
