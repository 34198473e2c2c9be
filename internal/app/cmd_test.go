package app

import (
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"空はserve", []string{}, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"migrate down", []string{"migrate", "down"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"未知のコマンドはserve", []string{"unknown"}, CommandServe},
		{"余分な引数は無視", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseMigrateDirection(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want MigrateDirection
	}{
		{"指定なしはup", []string{"migrate"}, MigrateUp},
		{"up", []string{"migrate", "up"}, MigrateUp},
		{"down", []string{"migrate", "down"}, MigrateDown},
		{"未知の方向はup", []string{"migrate", "sideways"}, MigrateUp},
		{"migrate以外では常にup", []string{"serve", "down"}, MigrateUp},
		{"空", nil, MigrateUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMigrateDirection(tt.args); got != tt.want {
				t.Errorf("ParseMigrateDirection(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
