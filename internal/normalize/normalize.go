package normalize

import (
	"html"
	"strings"
	"time"

	"github.com/John-Robertt/SRMC/internal/classify"
	"github.com/John-Robertt/SRMC/internal/domain"
)

// Review 把一条上游评测展平为固定字段的 Record，并附加 source 元数据。
//
// 约束：
// - 纯函数：相同输入 => 相同输出
// - 任何可选字段缺失都映射为空值，不返回错误
func Review(src domain.Source, r domain.RawReview) domain.Record {
	text := CleanText(deref(r.Review))

	rec := domain.Record{
		Platform:          domain.Platform,
		AppID:             src.AppID,
		AppName:           src.Name,
		MonetizationModel: src.Model,

		RecommendationID: copyStr(r.RecommendationID),
		Language:         copyStr(r.Language),
		ReviewText:       text,
		TimestampCreated: ISOTime(r.TimestampCreated),
		TimestampUpdated: ISOTime(r.TimestampUpdated),

		VotedUp:           copyBool(r.VotedUp),
		VotesUp:           copyInt(r.VotesUp),
		VotesFunny:        copyInt(r.VotesFunny),
		WeightedVoteScore: numberText(r.WeightedVoteScore),

		SteamPurchase:            copyBool(r.SteamPurchase),
		ReceivedForFree:          copyBool(r.ReceivedForFree),
		WrittenDuringEarlyAccess: copyBool(r.WrittenDuringEarlyAccess),

		MonetizationFlag: classify.Monetization(text),
	}

	if a := r.Author; a != nil {
		rec.AuthorSteamID = copyStr(a.SteamID)
		rec.AuthorNumGamesOwned = copyInt(a.NumGamesOwned)
		rec.AuthorNumReviews = copyInt(a.NumReviews)
		rec.AuthorPlaytimeForeverM = copyInt(a.PlaytimeForever)
		rec.AuthorPlaytimeLastTwoWeeks = copyInt(a.PlaytimeLastTwoWeeks)
		rec.AuthorPlaytimeAtReviewM = copyInt(a.PlaytimeAtReview)
		// last_played 保持原始 epoch 秒，不做格式化。
		rec.AuthorLastPlayed = copyInt(a.LastPlayed)
	}
	return rec
}

// Reviews 按输入顺序逐条规范化。
func Reviews(src domain.Source, rs []domain.RawReview) []domain.Record {
	out := make([]domain.Record, 0, len(rs))
	for _, r := range rs {
		out = append(out, Review(src, r))
	}
	return out
}

// CleanText 反转义 HTML 实体、统一换行为 \n，并去掉首尾空白。
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// ISOTime 把 epoch 秒转为 RFC3339 UTC；nil 或 0 返回 nil（不输出 1970-01-01）。
func ISOTime(sec *int64) *string {
	if sec == nil || *sec == 0 {
		return nil
	}
	s := time.Unix(*sec, 0).UTC().Format(time.RFC3339)
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// 复制指针指向的值，避免 Record 与 RawReview 共享可变内存。
func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyInt(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func numberText(p *domain.NumberText) *string {
	if p == nil {
		return nil
	}
	v := string(*p)
	return &v
}
