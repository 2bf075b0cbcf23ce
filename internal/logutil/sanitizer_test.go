package logutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSQL(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "string literal",
			query: "SELECT * FROM users WHERE email = 'user@example.com'",
			want:  "SELECT * FROM users WHERE email = '<redacted>'",
		},
		{
			name:  "escaped quote inside literal",
			query: "SELECT * FROM users WHERE username = 'o''brien'",
			want:  "SELECT * FROM users WHERE username = '<redacted>'",
		},
		{
			name:  "numeric literal",
			query: "UPDATE users SET failed_login_attempts = 3 WHERE port = 5432",
			want:  "UPDATE users SET failed_login_attempts = <num> WHERE port = <num>",
		},
		{
			name:  "positional parameters kept",
			query: "SELECT * FROM users WHERE business_id = $1 AND username = $2",
			want:  "SELECT * FROM users WHERE business_id = $1 AND username = $2",
		},
		{
			name:  "mixed parameters and literals",
			query: "UPDATE users SET locked_at = NULL, failed_login_attempts = 0 WHERE id = $1",
			want:  "UPDATE users SET locked_at = NULL, failed_login_attempts = <num> WHERE id = $1",
		},
		{
			name:  "uuid literal",
			query: "DELETE FROM auth_log WHERE user_id = 550e8400-e29b-41d4-a716-446655440000",
			want:  "DELETE FROM auth_log WHERE user_id = <uuid>",
		},
		{
			name:  "no literals untouched",
			query: "SELECT count(*) FROM users",
			want:  "SELECT count(*) FROM users",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeSQL(tt.query))
		})
	}
}
