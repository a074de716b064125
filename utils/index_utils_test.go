package utils

import "testing"

func TestGenerateIndexName(t *testing.T) {
	tests := []struct {
		name         string
		tableName    string
		fields       []string
		unique       bool
		existingName string
		expected     string
	}{
		{
			name:         "uses existing name when provided",
			tableName:    "users",
			fields:       []string{"email"},
			existingName: "custom_index_name",
			expected:     "custom_index_name",
		},
		{
			name:      "generates regular index name",
			tableName: "users",
			fields:    []string{"email"},
			expected:  "idx_users_email",
		},
		{
			name:      "generates unique index name",
			tableName: "users",
			fields:    []string{"email"},
			unique:    true,
			expected:  "uniq_users_email",
		},
		{
			name:      "generates composite index name",
			tableName: "posts",
			fields:    []string{"user_id", "created_at"},
			expected:  "idx_posts_user_id_created_at",
		},
		{
			name:      "generates unique composite index name",
			tableName: "posts",
			fields:    []string{"user_id", "created_at"},
			unique:    true,
			expected:  "uniq_posts_user_id_created_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateIndexName(tt.tableName, tt.fields, tt.unique, tt.existingName)
			if result != tt.expected {
				t.Errorf("GenerateIndexName() = %v, want %v", result, tt.expected)
			}
		})
	}
}
