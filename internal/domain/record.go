package domain

import "strconv"

// Columns 是输出表的固定列顺序（CSV 表头 / SQLite 列名）。
var Columns = []string{
	"platform",
	"appid",
	"app_name",
	"monetization_model",
	"recommendation_id",
	"language",
	"review_text",
	"timestamp_created",
	"timestamp_updated",
	"voted_up",
	"votes_up",
	"votes_funny",
	"weighted_vote_score",
	"steam_purchase",
	"received_for_free",
	"written_during_early_access",
	"author_steamid",
	"author_num_games_owned",
	"author_num_reviews",
	"author_playtime_forever_m",
	"author_playtime_last_two_weeks_m",
	"author_playtime_at_review_m",
	"author_last_played",
	"monetization_flag",
}

// Record 是规范化后的一行输出。
// 指针字段为 nil 即“空值”（CSV 空单元格 / SQL NULL）。
type Record struct {
	Platform          string
	AppID             int
	AppName           string
	MonetizationModel string

	RecommendationID *string
	Language         *string
	ReviewText       string
	TimestampCreated *string // RFC3339 UTC
	TimestampUpdated *string // RFC3339 UTC

	VotedUp           *bool
	VotesUp           *int64
	VotesFunny        *int64
	WeightedVoteScore *string

	SteamPurchase            *bool
	ReceivedForFree          *bool
	WrittenDuringEarlyAccess *bool

	AuthorSteamID              *string
	AuthorNumGamesOwned        *int64
	AuthorNumReviews           *int64
	AuthorPlaytimeForeverM     *int64
	AuthorPlaytimeLastTwoWeeks *int64
	AuthorPlaytimeAtReviewM    *int64
	AuthorLastPlayed           *int64

	MonetizationFlag bool
}

// Values 按 Columns 顺序返回列值；空值为 nil。
func (r Record) Values() []any {
	return []any{
		r.Platform,
		r.AppID,
		r.AppName,
		r.MonetizationModel,
		strOrNil(r.RecommendationID),
		strOrNil(r.Language),
		r.ReviewText,
		strOrNil(r.TimestampCreated),
		strOrNil(r.TimestampUpdated),
		boolOrNil(r.VotedUp),
		intOrNil(r.VotesUp),
		intOrNil(r.VotesFunny),
		strOrNil(r.WeightedVoteScore),
		boolOrNil(r.SteamPurchase),
		boolOrNil(r.ReceivedForFree),
		boolOrNil(r.WrittenDuringEarlyAccess),
		strOrNil(r.AuthorSteamID),
		intOrNil(r.AuthorNumGamesOwned),
		intOrNil(r.AuthorNumReviews),
		intOrNil(r.AuthorPlaytimeForeverM),
		intOrNil(r.AuthorPlaytimeLastTwoWeeks),
		intOrNil(r.AuthorPlaytimeAtReviewM),
		intOrNil(r.AuthorLastPlayed),
		r.MonetizationFlag,
	}
}

// Strings 按 Columns 顺序返回 CSV 单元格；空值为 ""。
func (r Record) Strings() []string {
	vals := r.Values()
	out := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = x
		case int:
			out[i] = strconv.Itoa(x)
		case int64:
			out[i] = strconv.FormatInt(x, 10)
		case bool:
			out[i] = strconv.FormatBool(x)
		}
	}
	return out
}

func strOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func intOrNil(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolOrNil(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
