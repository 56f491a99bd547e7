package services

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"papertrader/internal/models"
)

var (
	ErrUserExists   = errors.New("username or email already exists")
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository persists registered users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type MongoUserRepository struct {
	users *mongo.Collection
}

func NewMongoUserRepository(users *mongo.Collection) *MongoUserRepository {
	return &MongoUserRepository{users: users}
}

// Create inserts user, assigning an ID. It fails with ErrUserExists when the
// username or email is taken.
func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	var existing models.User
	err := r.users.FindOne(ctx, bson.M{
		"$or": []bson.M{
			{"username": user.Username},
			{"email": user.Email},
		},
	}).Decode(&existing)
	if err == nil {
		return ErrUserExists
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}

	user.ID = primitive.NewObjectID()
	if _, err := r.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *MongoUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": objID})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := r.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// MemoryUserRepository keeps users in process memory. Used when no MongoDB
// is configured.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.User
	names map[string]string // username -> id
	mails map[string]string // email -> id
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:  make(map[string]*models.User),
		names: make(map[string]string),
		mails: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[user.Username]; ok {
		return ErrUserExists
	}
	if _, ok := r.mails[user.Email]; ok {
		return ErrUserExists
	}
	user.ID = primitive.NewObjectID()
	stored := *user
	id := user.ID.Hex()
	r.byID[id] = &stored
	r.names[user.Username] = id
	r.mails[user.Email] = id
	return nil
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.names[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *r.byID[id]
	return &u, nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *stored
	return &u, nil
}
