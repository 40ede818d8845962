package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/duocall/duocall/internal/domain/models"
)

type fakeUserRepo struct {
	byName map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byName: make(map[string]*models.User)}
}

func (r *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) error {
	if _, exists := r.byName[user.Username]; exists {
		return errors.New("username taken")
	}

	stored := *user
	r.byName[user.Username] = &stored
	return nil
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range r.byName {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, errors.New("user not found")
}

func (r *fakeUserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, exists := r.byName[username]
	if !exists {
		return nil, errors.New("user not found")
	}

	copied := *u
	return &copied, nil
}

func TestValidateCredentials(t *testing.T) {
	repo := newFakeUserRepo()
	uc := NewUserUsecase([]byte("test-secret"), repo)

	created, err := uc.CreateUser(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Password != "" {
		t.Fatal("password hash leaked from CreateUser")
	}

	user, err := uc.ValidateCredentials(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("validate with correct password: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("username=%q, want alice", user.Username)
	}
	if user.Password != "" {
		t.Fatal("password hash leaked from ValidateCredentials")
	}

	if _, err = uc.ValidateCredentials(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}

	if _, err = uc.ValidateCredentials(context.Background(), "nobody", "s3cret"); err == nil {
		t.Fatal("unknown user accepted")
	}
}

func TestGenerateJWTCarriesUserID(t *testing.T) {
	repo := newFakeUserRepo()
	uc := NewUserUsecase([]byte("test-secret"), repo)

	created, err := uc.CreateUser(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	signed, err := uc.GenerateJWT(created)
	if err != nil {
		t.Fatalf("generate jwt: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil {
		t.Fatalf("parse jwt: %v", err)
	}
	if !token.Valid {
		t.Fatal("token invalid")
	}
	if claims.Subject != created.ID.String() {
		t.Fatalf("subject=%q, want %q", claims.Subject, created.ID)
	}
}
