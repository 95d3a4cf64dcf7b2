package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KBEntry is a knowledge base question/answer pair used by the chat endpoint.
type KBEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Question  string             `bson:"question" json:"question" yaml:"question"`
	Answer    string             `bson:"answer" json:"answer" yaml:"answer"`
	Keywords  []string           `bson:"keywords" json:"keywords" yaml:"keywords"`
	Category  string             `bson:"category,omitempty" json:"category,omitempty" yaml:"category"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at" yaml:"-"`
}
