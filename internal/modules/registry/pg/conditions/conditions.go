package conditions

import (
	"context"
	"fmt"

	"alert_engine/internal/models"
	"alert_engine/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// Conditions implement db store
type Conditions struct {
	txm *db.PgTxManager
}

// New instance
func New(txm *db.PgTxManager) *Conditions {
	return &Conditions{txm: txm}
}

const insertSQL = `
INSERT INTO conditions (condition_id, symbol, timeframe, kind, indicator, operator, params, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (condition_id) DO NOTHING`

// Upsert вставляет условие; created=false означает, что строка с таким хэшем
// уже существовала — это и есть механизм дедупликации.
func (c *Conditions) Upsert(ctx context.Context, cond models.Condition) (created bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Conditions.Upsert: %w", err)
		}
	}()

	var params []byte
	params, err = sonic.Marshal(cond.Params)
	if err != nil {
		return false, err
	}

	err = c.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, execErr := tx.Exec(ctxTx, insertSQL,
			cond.ConditionID, cond.Symbol, string(cond.Timeframe), string(cond.Kind),
			cond.Indicator, string(cond.Operator), params, cond.CreatedAt,
		)
		if execErr != nil {
			return execErr
		}
		created = tag.RowsAffected() > 0
		return nil
	})
	return created, err
}

const getSQL = `
SELECT condition_id, symbol, timeframe, kind, indicator, operator, params, created_at
FROM conditions WHERE condition_id = $1`

func (c *Conditions) Get(ctx context.Context, conditionID string) (cond models.Condition, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Conditions.Get: %w", err)
		}
	}()

	var (
		params             []byte
		tf, kind, operator string
	)
	row := c.txm.Conn().QueryRow(ctx, getSQL, conditionID)
	err = row.Scan(&cond.ConditionID, &cond.Symbol, &tf, &kind,
		&cond.Indicator, &operator, &params, &cond.CreatedAt)
	if err != nil {
		return models.Condition{}, err
	}
	cond.Timeframe = models.Timeframe(tf)
	cond.Kind = models.Kind(kind)
	cond.Operator = models.Operator(operator)
	err = sonic.Unmarshal(params, &cond.Params)
	if err != nil {
		return models.Condition{}, err
	}
	return cond, nil
}

func (c *Conditions) Count(ctx context.Context) (n int64, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Conditions.Count: %w", err)
		}
	}()
	err = c.txm.Conn().QueryRow(ctx, `SELECT count(*) FROM conditions`).Scan(&n)
	return n, err
}
