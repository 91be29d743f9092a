package rediskey

import "fmt"

// Competition keys (global convention across the engine)
const (
	CompetitionPrefix  = "competition"
	LeaderboardPrefix  = "competition:leaderboard"
	DistributionPrefix = "competition:distribution"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildCompetitionKey returns "competition:{competitionID}"
func BuildCompetitionKey(competitionID string) string {
	return NamespaceKey(CompetitionPrefix, competitionID)
}

// BuildLeaderboardKey returns "competition:leaderboard:{competitionID}"
func BuildLeaderboardKey(competitionID string) string {
	return NamespaceKey(LeaderboardPrefix, competitionID)
}

// BuildDistributionLockKey returns "competition:distribution:{competitionID}"
func BuildDistributionLockKey(competitionID string) string {
	return NamespaceKey(DistributionPrefix, competitionID)
}
