package models

// KVEntry, KVSetMember and KVSortedMember back the SQL implementation of the
// key-value store: plain strings, sets and sorted sets.
type KVEntry struct {
	Key   string `gorm:"column:kv_key;primaryKey;size:255"`
	Value string `gorm:"type:text;not null"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

type KVSetMember struct {
	Key    string `gorm:"column:kv_key;primaryKey;size:255"`
	Member string `gorm:"primaryKey;size:255"`
}

func (KVSetMember) TableName() string {
	return "kv_set_members"
}

type KVSortedMember struct {
	ID     int64   `gorm:"primaryKey;autoIncrement"`
	Key    string  `gorm:"column:kv_key;size:255;uniqueIndex:kv_sorted_key_member;index:kv_sorted_key_score,priority:1"`
	Member string  `gorm:"type:text;uniqueIndex:kv_sorted_key_member"`
	Score  float64 `gorm:"index:kv_sorted_key_score,priority:2"`
}

func (KVSortedMember) TableName() string {
	return "kv_sorted_members"
}
