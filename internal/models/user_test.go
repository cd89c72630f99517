package models_test

import (
	"reflect"
	"testing"

	"chatline/backend/internal/models"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

// TestUserBeforeCreate_GeneratesID verifies that the BeforeCreate hook generates a valid ULID.
func TestUserBeforeCreate_GeneratesID(t *testing.T) {
	// Arrange
	user := &models.User{FullName: "Ada Lovelace", Email: "  Ada@Example.COM "}
	assert.Empty(t, user.ID)

	// Act
	err := user.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	_, parseErr := ulid.ParseStrict(user.ID)
	assert.NoError(t, parseErr, "User ID must be a valid ULID")
	assert.Equal(t, "ada@example.com", user.Email)
	assert.False(t, user.LastSeen.IsZero())
}

func TestUserBeforeCreate_PreservesExistingID(t *testing.T) {
	user := &models.User{ID: "65f0c0ffee0000000000beef", Email: "a@b.c"}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, "65f0c0ffee0000000000beef", user.ID)
}

func TestNewID_SortsInCreationOrder(t *testing.T) {
	prev := models.NewID()
	for i := 0; i < 1000; i++ {
		next := models.NewID()
		assert.Less(t, prev, next)
		prev = next
	}
}

// TestUserStructTags guards the wire and storage names clients depend on.
func TestUserStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})

	idField, _ := userType.FieldByName("ID")
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")
	assert.Equal(t, "_id", idField.Tag.Get("json"))
	assert.Equal(t, "_id", idField.Tag.Get("bson"))

	emailField, _ := userType.FieldByName("Email")
	assert.Contains(t, emailField.Tag.Get("gorm"), "uniqueIndex")

	pwField, _ := userType.FieldByName("Password")
	assert.Equal(t, "-", pwField.Tag.Get("json"), "password hash must never be serialized")
}

func BenchmarkUserBeforeCreate(b *testing.B) {
	user := &models.User{Email: "bench@example.com"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user.ID = ""
		_ = user.BeforeCreate(nil)
	}
}
