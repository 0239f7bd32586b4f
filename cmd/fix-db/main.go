package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// Пересобирает счётчики user_scores из журнала quiz_histories.
// Журнал append-only и служит источником истины; инструмент нужен,
// если счётчики разошлись с журналом (обрыв транзакции, ручные правки).
func main() {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		envOr("DATABASE_HOST", "localhost"),
		envOr("DATABASE_PORT", "5432"),
		envOr("DATABASE_USER", "postgres"),
		envOr("DATABASE_PASSWORD", "123456"),
		envOr("DATABASE_DBNAME", "cipherquiz_db"),
		envOr("DATABASE_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	rebuilt, err := rebuildScores(db)
	if err != nil {
		log.Fatalf("Failed to rebuild user scores: %v", err)
	}

	orphans, err := countOrphanScores(db)
	if err != nil {
		log.Fatalf("Failed to check for orphan scores: %v", err)
	}

	fmt.Printf("Success! %d user score rows rebuilt from quiz history.\n", rebuilt)
	if orphans > 0 {
		fmt.Printf("Warning: %d user score rows have no matching history and were left untouched.\n", orphans)
	}
}

type scoreAggregate struct {
	user      string
	topic     entity.Address
	wins      int64
	completed int64
	rewards   int64
	lastUnix  int64
}

// rebuildScores пересчитывает счётчики по журналу и перезаписывает их
// в одной транзакции
func rebuildScores(db *sql.DB) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// SUM по bigint в Postgres возвращает numeric, поэтому приводим явно
	rows, err := tx.Query(`
		SELECT "user", topic_address,
		       SUM(CASE WHEN is_winner THEN 1 ELSE 0 END)::bigint AS wins,
		       COUNT(*)::bigint                                   AS completed,
		       COALESCE(SUM(reward_claimed), 0)::bigint           AS rewards,
		       MAX(completed_at)::bigint                          AS last_completed
		FROM quiz_histories
		GROUP BY "user", topic_address`)
	if err != nil {
		return 0, err
	}

	var aggregates []scoreAggregate
	for rows.Next() {
		var agg scoreAggregate
		if err := rows.Scan(&agg.user, &agg.topic, &agg.wins, &agg.completed, &agg.rewards, &agg.lastUnix); err != nil {
			rows.Close()
			return 0, err
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, agg := range aggregates {
		address := entity.UserScoreAddress(entity.Identity(agg.user), agg.topic)
		_, err := tx.Exec(`
			INSERT INTO user_scores (address, "user", topic_address, score, total_completed, total_rewards, last_activity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (address) DO UPDATE SET
			    score           = EXCLUDED.score,
			    total_completed = EXCLUDED.total_completed,
			    total_rewards   = EXCLUDED.total_rewards,
			    last_activity   = EXCLUDED.last_activity`,
			address, agg.user, agg.topic, agg.wins, agg.completed, agg.rewards, time.Unix(agg.lastUnix, 0))
		if err != nil {
			return 0, fmt.Errorf("upsert score for user %s: %w", agg.user, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(aggregates), nil
}

// countOrphanScores считает счета без единой записи в журнале.
// Такие строки не трогаем: журнал мог быть усечён намеренно.
func countOrphanScores(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM user_scores s
		WHERE NOT EXISTS (
		    SELECT 1 FROM quiz_histories h
		    WHERE h."user" = s."user" AND h.topic_address = s.topic_address
		)`).Scan(&count)
	return count, err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
