package store

import "time"

// BookModel maps the books table shared with the hosted REST API.
type BookModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Title     string    `gorm:"not null"`
	Author    string    `gorm:"not null"`
	Pages     int       `gorm:"not null"`
	Year      int       `gorm:"not null"`
	OwnerID   string    `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (BookModel) TableName() string {
	return "books"
}
