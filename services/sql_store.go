package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Singhary/chaty/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"
)

// SQLStore implements Store over three tables (strings, sets, sorted sets).
// Reads go to replicas when the resolver has them, batches run in one
// transaction on the master.
type SQLStore struct {
	orm *gorm.DB
}

func NewSQLStore(orm *gorm.DB) *SQLStore {
	return &SQLStore{orm: orm}
}

func (s *SQLStore) read(ctx context.Context) *gorm.DB {
	return s.orm.WithContext(ctx).Clauses(dbresolver.Read)
}

func (s *SQLStore) write(ctx context.Context) *gorm.DB {
	return s.orm.WithContext(ctx).Clauses(dbresolver.Write)
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var entry models.KVEntry
	err := s.read(ctx).Where("kv_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNil
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	return applyOp(s.write(ctx), Op{Kind: OpSet, Key: key, Value: value})
}

func (s *SQLStore) SAdd(ctx context.Context, key string, members ...string) error {
	return applyOp(s.write(ctx), Op{Kind: OpSAdd, Key: key, Members: members})
}

func (s *SQLStore) SRem(ctx context.Context, key string, members ...string) error {
	return applyOp(s.write(ctx), Op{Kind: OpSRem, Key: key, Members: members})
}

func (s *SQLStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var count int64
	err := s.read(ctx).Model(&models.KVSetMember{}).
		Where("kv_key = ? AND member = ?", key, member).
		Count(&count).Error
	return count > 0, err
}

func (s *SQLStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members := []string{}
	err := s.read(ctx).Model(&models.KVSetMember{}).
		Where("kv_key = ?", key).
		Order("member ASC").
		Pluck("member", &members).Error
	return members, err
}

func (s *SQLStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return applyOp(s.write(ctx), Op{Kind: OpZAdd, Key: key, Score: score, Members: []string{member}})
}

func (s *SQLStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var n int64
	if err := s.read(ctx).Model(&models.KVSortedMember{}).Where("kv_key = ?", key).Count(&n).Error; err != nil {
		return nil, err
	}
	from, to, ok := normalizeRange(n, start, stop)
	if !ok {
		return []string{}, nil
	}

	members := []string{}
	err := s.read(ctx).Model(&models.KVSortedMember{}).
		Where("kv_key = ?", key).
		Order("score ASC").
		Order("member ASC").
		Offset(int(from)).
		Limit(int(to-from+1)).
		Pluck("member", &members).Error
	return members, err
}

func (s *SQLStore) Atomic(ctx context.Context, ops *Ops) error {
	if ops.Len() == 0 {
		return nil
	}
	return s.write(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops.List() {
			if err := applyOp(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func applyOp(tx *gorm.DB, op Op) error {
	switch op.Kind {
	case OpSet:
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kv_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&models.KVEntry{Key: op.Key, Value: op.Value}).Error
	case OpSAdd:
		rows := make([]models.KVSetMember, 0, len(op.Members))
		for _, m := range op.Members {
			rows = append(rows, models.KVSetMember{Key: op.Key, Member: m})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	case OpSRem:
		if len(op.Members) == 0 {
			return nil
		}
		return tx.Where("kv_key = ? AND member IN ?", op.Key, op.Members).Delete(&models.KVSetMember{}).Error
	case OpZAdd:
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kv_key"}, {Name: "member"}},
			DoUpdates: clause.AssignmentColumns([]string{"score"}),
		}).Create(&models.KVSortedMember{Key: op.Key, Member: op.Members[0], Score: op.Score}).Error
	default:
		return fmt.Errorf("unsupported op %s", op.Kind)
	}
}
