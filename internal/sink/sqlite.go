package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/John-Robertt/SRMC/internal/domain"
)

// SQLite 把一次运行的结果追加到 SQLite 数据库：
// - runs：每次运行一行
// - run_apps：每个 source 一行
// - reviews：与 CSV 相同的列，外加 run_id
//
// 不做跨运行去重；同一评测在多次运行中会出现多行，用 run_id 区分。
type SQLite struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	generated_at_utc TEXT NOT NULL,
	platform         TEXT NOT NULL,
	language         TEXT NOT NULL,
	purchase_type    TEXT NOT NULL,
	filter_type      TEXT NOT NULL,
	per_game_max     INTEGER NOT NULL,
	total_rows       INTEGER NOT NULL,
	notes            TEXT
);
CREATE TABLE IF NOT EXISTS run_apps (
	run_id             TEXT NOT NULL REFERENCES runs(run_id),
	appid              INTEGER NOT NULL,
	name               TEXT NOT NULL,
	monetization_model TEXT,
	rows_collected     INTEGER NOT NULL,
	pages              INTEGER NOT NULL,
	retries            INTEGER NOT NULL,
	stop_reason        TEXT NOT NULL,
	error_code         TEXT,
	error_msg          TEXT,
	PRIMARY KEY (run_id, appid)
);
CREATE TABLE IF NOT EXISTS reviews (
	run_id                           TEXT NOT NULL REFERENCES runs(run_id),
	platform                         TEXT NOT NULL,
	appid                            INTEGER NOT NULL,
	app_name                         TEXT NOT NULL,
	monetization_model               TEXT,
	recommendation_id                TEXT,
	language                         TEXT,
	review_text                      TEXT,
	timestamp_created                TEXT,
	timestamp_updated                TEXT,
	voted_up                         INTEGER,
	votes_up                         INTEGER,
	votes_funny                      INTEGER,
	weighted_vote_score              TEXT,
	steam_purchase                   INTEGER,
	received_for_free                INTEGER,
	written_during_early_access      INTEGER,
	author_steamid                   TEXT,
	author_num_games_owned           INTEGER,
	author_num_reviews               INTEGER,
	author_playtime_forever_m        INTEGER,
	author_playtime_last_two_weeks_m INTEGER,
	author_playtime_at_review_m      INTEGER,
	author_last_played               INTEGER,
	monetization_flag                INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS reviews_run_app ON reviews(run_id, appid);
`

// OpenSQLite 打开（必要时创建）path 处的数据库并建表。
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite 路径不能为空")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite 单写者；也让 :memory: 在多次调用间共享同一个库。
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化 sqlite 表结构失败：%w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error { return s.db.Close() }

// Load 在一个事务中写入 meta 与 rows；任一失败整体回滚。
func (s *SQLite) Load(ctx context.Context, meta domain.RunMeta, rows []domain.Record) (err error) {
	meta.Finalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, generated_at_utc, platform, language, purchase_type, filter_type, per_game_max, total_rows, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.GeneratedAtUTC.Format(time.RFC3339), meta.Platform, meta.Language,
		meta.PurchaseType, meta.FilterType, meta.PerGameMax, meta.TotalRows, meta.Notes,
	); err != nil {
		return fmt.Errorf("写入 runs 失败：%w", err)
	}

	for _, a := range meta.Apps {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO run_apps (run_id, appid, name, monetization_model, rows_collected, pages, retries, stop_reason, error_code, error_msg)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			meta.RunID, a.AppID, a.Name, a.MonetizationModel, a.RowsCollected, a.Pages, a.Retries,
			a.StopReason, nullIfEmpty(a.ErrorCode), nullIfEmpty(a.ErrorMsg),
		); err != nil {
			return fmt.Errorf("写入 run_apps 失败：%w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, insertReviewSQL())
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range rows {
		args := append([]any{meta.RunID}, r.Values()...)
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("写入第 %d 行失败：%w", i+1, err)
		}
	}
	return tx.Commit()
}

func insertReviewSQL() string {
	cols := append([]string{"run_id"}, domain.Columns...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT INTO reviews (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
