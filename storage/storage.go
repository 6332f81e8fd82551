package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskman/domain"
)

const (
	usersCollection = "users"
	tasksCollection = "tasks"

	clientTimeout = 10 * time.Second
)

// Storage provides access to the underlying document store.
type Storage struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection
}

// New connects to the store and prepares the collections. The unique index
// on users.email backstops the read-then-insert registration check.
func New(ctx context.Context, uri, dbName string) (*Storage, error) {
	opts := options.Client().ApplyURI(uri).SetTimeout(clientTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	db := client.Database(dbName)
	s := &Storage{
		client: client,
		users:  db.Collection(usersCollection),
		tasks:  db.Collection(tasksCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Close tears down the store connection.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var user domain.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *Storage) InsertUser(ctx context.Context, user domain.User) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	cur, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var users []domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Storage) InsertTask(ctx context.Context, task domain.Task) (primitive.ObjectID, error) {
	res, err := s.tasks.InsertOne(ctx, task)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert task: %w", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("insert task: unexpected id type %T", res.InsertedID)
	}
	return id, nil
}

func (s *Storage) FindTasks(ctx context.Context, filter domain.TaskFilter, skip, limit int64) ([]domain.Task, error) {
	opts := options.Find().SetSkip(skip).SetLimit(limit)
	cur, err := s.tasks.Find(ctx, taskQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var tasks []domain.Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	return tasks, nil
}

func (s *Storage) GetTask(ctx context.Context, id primitive.ObjectID) (domain.Task, error) {
	var task domain.Task
	err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Task{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// UpdateTask applies the patch to the task matching both id and owner. A
// zero match after the caller's pre-write read means the record vanished or
// its ownership changed in the window, which surfaces as ErrConflict.
func (s *Storage) UpdateTask(ctx context.Context, id primitive.ObjectID, ownerID string, patch domain.TaskPatch) error {
	set := updateDocument(patch)
	if len(set) == 0 {
		return nil
	}
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": id, "userId": ownerID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrConflict
	}
	return nil
}

// DeleteTask removes the task matching both id and owner, with the same
// conflict semantics as UpdateTask.
func (s *Storage) DeleteTask(ctx context.Context, id primitive.ObjectID, ownerID string) error {
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id, "userId": ownerID})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrConflict
	}
	return nil
}

func taskQuery(filter domain.TaskFilter) bson.M {
	query := bson.M{}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	if !filter.DueDateFrom.IsZero() {
		query["dueDate"] = bson.M{"$gte": filter.DueDateFrom}
	}
	if filter.OwnerID != "" {
		query["userId"] = filter.OwnerID
	}
	return query
}

// updateDocument builds the $set document from a patch. The owner field can
// never appear here.
func updateDocument(patch domain.TaskPatch) bson.M {
	set := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Priority != nil {
		set["priority"] = *patch.Priority
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.DueDate != nil {
		set["dueDate"] = *patch.DueDate
	}
	return set
}
