package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Zhun1s/TomatoBot/internal/models"
)

const (
	usersCollection       = "users"
	tasksCollection       = "tasks"
	settingsCollection    = "settings"
	statsCollection       = "stats"
	sessionLogsCollection = "session_logs"
)

// MongoStorage persists bot state in a MongoDB database.
type MongoStorage struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStorage connects to the given URI and pings the server before
// returning, so wiring fails fast on a bad connection string.
func NewMongoStorage(ctx context.Context, uri, dbName string) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoStorage{client: client, db: client.Database(dbName)}, nil
}

func (s *MongoStorage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// User methods

func (s *MongoStorage) SaveUser(ctx context.Context, user *models.User) error {
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now()
	}
	filter := bson.M{"_id": user.ID}
	update := bson.M{
		"$set":         bson.M{"chat_id": user.ChatID, "first_name": user.FirstName, "username": user.Username},
		"$setOnInsert": bson.M{"joined_at": user.JoinedAt},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(usersCollection).UpdateOne(ctx, filter, update, opts)
	return err
}

func (s *MongoStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Task methods

func (s *MongoStorage) InsertTask(ctx context.Context, task *models.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	_, err := s.db.Collection(tasksCollection).InsertOne(ctx, task)
	return err
}

func (s *MongoStorage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	err := s.db.Collection(tasksCollection).FindOne(ctx, bson.M{"_id": taskID}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *MongoStorage) PendingTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.tasksByStatus(ctx, userID, models.StatusPending)
}

func (s *MongoStorage) CompletedTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.tasksByStatus(ctx, userID, models.StatusCompleted)
}

func (s *MongoStorage) tasksByStatus(ctx context.Context, userID, status string) ([]models.Task, error) {
	filter := bson.M{"user_id": userID, "status": status}
	opts := options.Find().SetSort(bson.M{"due_date": 1})
	cursor, err := s.db.Collection(tasksCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	tasks := []models.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *MongoStorage) UpdateTaskFields(ctx context.Context, taskID string, fields map[string]interface{}) error {
	set := bson.M{}
	for field, value := range fields {
		set[field] = value
	}
	res, err := s.db.Collection(tasksCollection).UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStorage) MarkTaskCompleted(ctx context.Context, taskID, userID string) (bool, error) {
	filter := bson.M{"_id": taskID, "user_id": userID, "status": models.StatusPending}
	update := bson.M{"$set": bson.M{"status": models.StatusCompleted}}
	res, err := s.db.Collection(tasksCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStorage) TasksDueWithin(ctx context.Context, window time.Duration) ([]models.Task, error) {
	filter := bson.M{
		"status":   models.StatusPending,
		"due_date": bson.M{"$lte": time.Now().Add(window)},
	}
	opts := options.Find().SetSort(bson.M{"due_date": 1})
	cursor, err := s.db.Collection(tasksCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	tasks := []models.Task{}
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Settings methods

func (s *MongoStorage) GetOrCreateSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	filter := bson.M{"_id": userID}
	update := bson.M{"$setOnInsert": bson.M{"notifications": true}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var settings models.UserSettings
	err := s.db.Collection(settingsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&settings)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *MongoStorage) ToggleNotifications(ctx context.Context, userID string) (*models.UserSettings, error) {
	settings, err := s.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings.Notifications = !settings.Notifications
	filter := bson.M{"_id": userID}
	update := bson.M{"$set": bson.M{"notifications": settings.Notifications}}
	if _, err := s.db.Collection(settingsCollection).UpdateOne(ctx, filter, update); err != nil {
		return nil, err
	}
	return settings, nil
}

// Stats methods

func (s *MongoStorage) GetStats(ctx context.Context, userID string) (*models.Stats, error) {
	var stats models.Stats
	err := s.db.Collection(statsCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&stats)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.Stats{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *MongoStorage) IncrementStat(ctx context.Context, userID, field string, delta int) error {
	stats, err := s.GetStats(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	set := bson.M{"last_updated": now}
	// daily_sessions counts within a single UTC day.
	if !sameDay(stats.LastUpdated, now) && field != models.StatDailySessions {
		set[models.StatDailySessions] = 0
	}
	update := bson.M{"$set": set}
	if field == models.StatDailySessions && !sameDay(stats.LastUpdated, now) {
		set[models.StatDailySessions] = delta
	} else {
		update["$inc"] = bson.M{field: delta}
	}
	opts := options.Update().SetUpsert(true)
	_, err = s.db.Collection(statsCollection).UpdateOne(ctx, bson.M{"_id": userID}, update, opts)
	return err
}

// Session log methods

func (s *MongoStorage) AppendSessionLog(ctx context.Context, log *models.SessionLog) error {
	_, err := s.db.Collection(sessionLogsCollection).InsertOne(ctx, log)
	return err
}

func (s *MongoStorage) SessionLogs(ctx context.Context, userID string) ([]models.SessionLog, error) {
	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.M{"start_time": 1})
	cursor, err := s.db.Collection(sessionLogsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	logs := []models.SessionLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
