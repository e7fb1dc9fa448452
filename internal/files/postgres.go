package files

import (
	"context"
	"database/sql"
	"errors"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) FindPaidOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, status, created_at from orders
		 where id=$1 and user_id=$2 and status=$3`,
		orderID, userID, string(StatusPaid))
	var (
		o      Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.Status = OrderStatus(status)
	return &o, nil
}

func (s *PGStore) FilesForOrder(ctx context.Context, orderID string) ([]FileMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`select f.id, f.name, f.content_type
		 from files f
		 join order_items oi on oi.product_id = f.product_id
		 where oi.order_id = $1
		 order by f.name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []FileMeta
	for rows.Next() {
		var m FileMeta
		if err := rows.Scan(&m.ID, &m.Name, &m.ContentType); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func (s *PGStore) FindFile(ctx context.Context, fileID string) (*File, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, product_id, name, content_type, object_key from files where id=$1`, fileID)
	var f File
	if err := row.Scan(&f.ID, &f.ProductID, &f.Name, &f.ContentType, &f.ObjectKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *PGStore) FileInOrder(ctx context.Context, orderID, fileID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(
			select 1 from order_items oi
			join files f on f.product_id = oi.product_id
			where oi.order_id = $1 and f.id = $2
		)`, orderID, fileID).Scan(&exists)
	return exists, err
}

func (s *PGStore) InsertAccessLog(ctx context.Context, row *AccessLog) error {
	_, err := s.db.ExecContext(ctx,
		`insert into file_access_log(id, user_id, order_id, file_id, client_ip, occurred_at)
		 values($1,$2,$3,$4,$5,$6)`,
		row.ID, row.UserID, row.OrderID, row.FileID, nullIfEmpty(row.ClientIP), row.OccurredAt)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
