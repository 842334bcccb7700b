package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// CursorStart 是分页起点游标。
const CursorStart = "*"

// RawReview 是 appreviews 接口返回的单条评测（原样结构）。
//
// 所有标量字段都是指针：上游缺字段、给 null 或给了意料之外的类型时保持 nil，
// 由 normalize 映射为空值；单个字段异常不会让整条记录或整页解码失败。
type RawReview struct {
	RecommendationID *string
	Author           *RawAuthor
	Language         *string
	Review           *string

	TimestampCreated *int64
	TimestampUpdated *int64

	VotedUp           *bool
	VotesUp           *int64
	VotesFunny        *int64
	WeightedVoteScore *NumberText

	SteamPurchase            *bool
	ReceivedForFree          *bool
	WrittenDuringEarlyAccess *bool
}

// RawAuthor 是评测作者子结构。
type RawAuthor struct {
	SteamID              *string
	NumGamesOwned        *int64
	NumReviews           *int64
	PlaytimeForever      *int64
	PlaytimeLastTwoWeeks *int64
	PlaytimeAtReview     *int64
	LastPlayed           *int64
}

// UnmarshalJSON 逐字段宽松解码；不是对象时所有字段为空值。
func (r *RawReview) UnmarshalJSON(b []byte) error {
	f := fields(b)
	*r = RawReview{
		RecommendationID:         looseString(f["recommendationid"]),
		Language:                 looseString(f["language"]),
		Review:                   looseString(f["review"]),
		TimestampCreated:         looseInt(f["timestamp_created"]),
		TimestampUpdated:         looseInt(f["timestamp_updated"]),
		VotedUp:                  looseBool(f["voted_up"]),
		VotesUp:                  looseInt(f["votes_up"]),
		VotesFunny:               looseInt(f["votes_funny"]),
		WeightedVoteScore:        looseNumberText(f["weighted_vote_score"]),
		SteamPurchase:            looseBool(f["steam_purchase"]),
		ReceivedForFree:          looseBool(f["received_for_free"]),
		WrittenDuringEarlyAccess: looseBool(f["written_during_early_access"]),
	}
	if raw := f["author"]; isObject(raw) {
		var a RawAuthor
		_ = a.UnmarshalJSON(raw)
		r.Author = &a
	}
	return nil
}

// UnmarshalJSON 逐字段宽松解码；不是对象时所有字段为空值。
func (a *RawAuthor) UnmarshalJSON(b []byte) error {
	f := fields(b)
	*a = RawAuthor{
		SteamID:              looseString(f["steamid"]),
		NumGamesOwned:        looseInt(f["num_games_owned"]),
		NumReviews:           looseInt(f["num_reviews"]),
		PlaytimeForever:      looseInt(f["playtime_forever"]),
		PlaytimeLastTwoWeeks: looseInt(f["playtime_last_two_weeks"]),
		PlaytimeAtReview:     looseInt(f["playtime_at_review"]),
		LastPlayed:           looseInt(f["last_played"]),
	}
	return nil
}

// Page 是一次分页请求的解码结果。
// Cursor 为 nil 表示上游没有给出下一页游标。
type Page struct {
	Reviews []RawReview
	Cursor  *string

	// Body 是原始响应体（仅用于审计归档）。
	Body []byte
}

// NumberText 保存“数字或数字字符串”的原始文本。
// 上游的 weighted_vote_score 有时是 0，有时是 "0.523809552192687988"。
type NumberText string

func (n *NumberText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = NumberText(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("weighted_vote_score 不是数字：%s", string(b))
	}
	*n = NumberText(b)
	return nil
}

func fields(b []byte) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// looseString 接受字符串；数字按原文保留（例如数字形式的 steamid）。
func looseString(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var s string
	if raw[0] == '"' {
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		return &s
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err == nil {
		s = string(raw)
		return &s
	}
	return nil
}

// looseInt 接受整数、整数值的浮点数与整数字符串（"7"）；其它类型为 nil。
func looseInt(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if json.Unmarshal(raw, &text) != nil {
			return nil
		}
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		n := int64(f)
		return &n
	}
	return nil
}

// looseBool 接受 true/false 与其字符串形式；其它类型为 nil。
func looseBool(raw json.RawMessage) *bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if json.Unmarshal(raw, &text) != nil {
			return nil
		}
	}
	switch text {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

func looseNumberText(raw json.RawMessage) *NumberText {
	if len(raw) == 0 {
		return nil
	}
	var n NumberText
	if err := n.UnmarshalJSON(raw); err != nil {
		return nil
	}
	if n == "" && bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return &n
}
