package models

import "time"

// SessionLog is the terminal record of one pomodoro run, appended when the
// run finishes naturally or is stopped.
type SessionLog struct {
	ID                string    `bson:"_id" json:"id"`
	UserID            string    `bson:"user_id" json:"user_id"`
	TaskID            string    `bson:"task_id,omitempty" json:"task_id,omitempty"`
	StartTime         time.Time `bson:"start_time" json:"start_time"`
	EndTime           time.Time `bson:"end_time" json:"end_time"`
	WorkMinutes       int       `bson:"work_minutes" json:"work_minutes"`
	BreakMinutes      int       `bson:"break_minutes" json:"break_minutes"`
	SessionsCompleted int       `bson:"sessions_completed" json:"sessions_completed"`
	TotalSessions     int       `bson:"total_sessions" json:"total_sessions"`
	Completed         bool      `bson:"completed" json:"completed"`
}

// Stats accumulates per-user productivity counters, one document per user.
type Stats struct {
	UserID            string    `bson:"_id" json:"user_id"`
	TotalSessions     int       `bson:"total_sessions" json:"total_sessions"`
	TotalFocusMinutes int       `bson:"total_focus_minutes" json:"total_focus_minutes"`
	CompletedTasks    int       `bson:"completed_tasks" json:"completed_tasks"`
	DailySessions     int       `bson:"daily_sessions" json:"daily_sessions"`
	LastUpdated       time.Time `bson:"last_updated" json:"last_updated"`
}

// Stat counter names accepted by IncrementStat.
const (
	StatTotalSessions     = "total_sessions"
	StatTotalFocusMinutes = "total_focus_minutes"
	StatCompletedTasks    = "completed_tasks"
	StatDailySessions     = "daily_sessions"
)
