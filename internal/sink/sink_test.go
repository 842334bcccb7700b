package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/SRMC/internal/domain"
)

func sampleRows() []domain.Record {
	id, lang := "171", "english"
	ts := "2024-06-10T06:13:20Z"
	up := true
	votes := int64(3)
	return []domain.Record{
		{
			Platform: "steam", AppID: 570, AppName: "Dota 2", MonetizationModel: "cosmetics, battle pass",
			RecommendationID: &id, Language: &lang, ReviewText: "line one\n\"quoted\", comma",
			TimestampCreated: &ts, VotedUp: &up, VotesUp: &votes, MonetizationFlag: false,
		},
		{
			Platform: "steam", AppID: 570, AppName: "Dota 2", MonetizationModel: "cosmetics, battle pass",
			ReviewText: "battle pass is p2w", MonetizationFlag: true,
		},
	}
}

func sampleMeta() domain.RunMeta {
	return domain.RunMeta{
		RunID:          "run-1",
		GeneratedAtUTC: time.Date(2024, 6, 10, 8, 0, 0, 0, time.FixedZone("CST", 8*3600)),
		Platform:       "steam",
		Language:       "english",
		PurchaseType:   "all",
		FilterType:     "recent",
		PerGameMax:     4000,
		Concurrency:    1,
		Apps: []domain.AppResult{
			{AppID: 570, Name: "Dota 2", MonetizationModel: "cosmetics, battle pass", RowsCollected: 2, Pages: 1, StopReason: "exhausted"},
			{AppID: 730, Name: "Counter-Strike 2", RowsCollected: 0, Pages: 0, Retries: 6, StopReason: "failed", ErrorCode: "fetch_failed", ErrorMsg: "HTTP 503"},
		},
		Notes: "Single-file dataset & notes <x>",
	}
}

func TestWriteCSV_HeaderAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "all_reviews.csv")
	if err := WriteCSV(path, sampleRows()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取 CSV 失败：%v", err)
	}
	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		t.Fatalf("CSV 不可解析：%v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("期望 1 行表头 + 2 行数据，实际 %d", len(recs))
	}
	if strings.Join(recs[0], ",") != strings.Join(domain.Columns, ",") {
		t.Fatalf("表头不正确：%v", recs[0])
	}

	col := func(name string) int {
		for i, c := range domain.Columns {
			if c == name {
				return i
			}
		}
		t.Fatalf("未知列：%s", name)
		return -1
	}
	if recs[1][col("review_text")] != "line one\n\"quoted\", comma" {
		t.Fatalf("review_text 未正确转义：%q", recs[1][col("review_text")])
	}
	if recs[1][col("voted_up")] != "true" || recs[1][col("votes_up")] != "3" {
		t.Fatalf("标量列不正确：%v", recs[1])
	}
	if recs[2][col("recommendation_id")] != "" || recs[2][col("timestamp_created")] != "" {
		t.Fatalf("空值应为空单元格：%v", recs[2])
	}
	if recs[2][col("monetization_flag")] != "true" || recs[1][col("monetization_flag")] != "false" {
		t.Fatalf("monetization_flag 不正确")
	}
}

func TestWriteCSV_EmptyRowsStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, nil); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if strings.TrimSpace(buf.String()) != strings.Join(domain.Columns, ",") {
		t.Fatalf("空结果应只包含表头：%q", buf.String())
	}
}

func TestWriteCSV_UnwritablePathFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("准备文件失败：%v", err)
	}
	// 父路径是普通文件，无法创建目录。
	if err := WriteCSV(filepath.Join(blocker, "out.csv"), sampleRows()); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestWriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta", "run.json")
	if err := WriteMetadata(path, sampleMeta()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取 metadata 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\n  \"run_id\": \"run-1\"")) {
		t.Fatalf("应缩进 2 空格：\n%s", b)
	}
	if !bytes.Contains(b, []byte("& notes <x>")) {
		t.Fatalf("不应转义 HTML 字符：\n%s", b)
	}

	var got struct {
		GeneratedAtUTC string `json:"generated_at_utc"`
		TotalRows      int    `json:"total_rows"`
		Apps           []struct {
			RowsCollected int    `json:"rows_collected"`
			StopReason    string `json:"stop_reason"`
			ErrorCode     string `json:"error_code"`
		} `json:"apps"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("metadata 不是合法 JSON：%v", err)
	}
	if got.GeneratedAtUTC != "2024-06-10T00:00:00Z" {
		t.Fatalf("generated_at_utc 应为 UTC：%q", got.GeneratedAtUTC)
	}
	if got.TotalRows != 2 || len(got.Apps) != 2 || got.Apps[1].ErrorCode != "fetch_failed" {
		t.Fatalf("内容不正确：%+v", got)
	}
}

func TestSQLite_Load(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("打开 sqlite 失败：%v", err)
	}
	defer s.Close()

	if err := s.Load(ctx, sampleMeta(), sampleRows()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	var n int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE run_id = 'run-1'`).Scan(&n); err != nil {
		t.Fatalf("查询失败：%v", err)
	}
	if n != 2 {
		t.Fatalf("期望 2 行，实际 %d", n)
	}

	var flagged int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE monetization_flag = 1`).Scan(&flagged); err != nil {
		t.Fatalf("查询失败：%v", err)
	}
	if flagged != 1 {
		t.Fatalf("期望 1 行命中，实际 %d", flagged)
	}

	var nullIDs int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE recommendation_id IS NULL`).Scan(&nullIDs); err != nil {
		t.Fatalf("查询失败：%v", err)
	}
	if nullIDs != 1 {
		t.Fatalf("空值应写为 NULL，实际 %d", nullIDs)
	}

	var total int
	var stop string
	if err := s.DB().QueryRowContext(ctx, `SELECT r.total_rows, a.stop_reason FROM runs r JOIN run_apps a ON a.run_id = r.run_id WHERE a.appid = 730`).Scan(&total, &stop); err != nil {
		t.Fatalf("查询失败：%v", err)
	}
	if total != 2 || stop != "failed" {
		t.Fatalf("runs/run_apps 内容不正确：total=%d stop=%s", total, stop)
	}
}

func TestSQLite_LoadIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "db", "reviews.sqlite"))
	if err != nil {
		t.Fatalf("打开 sqlite 失败：%v", err)
	}
	defer s.Close()

	if err := s.Load(ctx, sampleMeta(), sampleRows()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 相同 run_id 再次写入违反主键，整个事务应回滚。
	if err := s.Load(ctx, sampleMeta(), sampleRows()); err == nil {
		t.Fatalf("重复 run_id 应返回错误")
	}
	var n int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&n); err != nil {
		t.Fatalf("查询失败：%v", err)
	}
	if n != 2 {
		t.Fatalf("失败的写入不应留下数据，实际 %d 行", n)
	}
}
