package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
)

type Admin struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
}

// Service resolves bearer credentials to principals. Credentials hidup
// di Postgres (bcrypt hash), session token opaque (uuid) di Redis dengan
// TTL sebagai masa berlaku.
type Service struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Log   *logrus.Logger
}

func (s *Service) LoginAdmin(ctx context.Context, username, password string) (string, *Admin, error) {
	var a Admin
	var hash string
	err := s.DB.QueryRow(ctx,
		`SELECT id, username, email, password_hash FROM admins WHERE username=$1`,
		username).Scan(&a.ID, &a.Username, &a.Email, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.startSession(ctx, Principal{ID: a.ID, Role: RoleAdmin, Email: a.Email}, redisx.TTLAdminSession)
	if err != nil {
		return "", nil, err
	}
	s.Log.WithField("admin", a.Username).Info("admin login")
	return token, &a, nil
}

func (s *Service) RegisterCustomer(ctx context.Context, name, email, password, phone, address, city string) (string, *User, error) {
	if name == "" || email == "" || password == "" {
		return "", nil, fmt.Errorf("%w: name, email and password are required", ErrInvalidCredentials)
	}
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email=$1)`, email).Scan(&exists); err != nil {
		return "", nil, err
	}
	if exists {
		return "", nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	u := &User{ID: uuid.NewString(), Name: name, Email: email, Phone: phone, Address: address, City: city}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, phone, address, city)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Name, u.Email, string(hash), u.Phone, u.Address, u.City)
	if err != nil {
		return "", nil, err
	}

	token, err := s.startSession(ctx, Principal{ID: u.ID, Role: RoleCustomer, Email: u.Email}, redisx.TTLCustomerSession)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *Service) LoginCustomer(ctx context.Context, email, password string) (string, *User, error) {
	var u User
	var hash string
	err := s.DB.QueryRow(ctx,
		`SELECT id, name, email, password_hash, phone, address, city FROM users WHERE email=$1`,
		email).Scan(&u.ID, &u.Name, &u.Email, &hash, &u.Phone, &u.Address, &u.City)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.startSession(ctx, Principal{ID: u.ID, Role: RoleCustomer, Email: u.Email}, redisx.TTLCustomerSession)
	if err != nil {
		return "", nil, err
	}
	return token, &u, nil
}

func (s *Service) startSession(ctx context.Context, p Principal, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if err := s.Redis.Set(ctx, fmt.Sprintf(redisx.KeySession, token), b, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps a bearer token back to its principal.
func (s *Service) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	raw, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeySession, token)).Result()
	if errors.Is(err, redis.Nil) {
		return Principal{}, ErrInvalidToken
	}
	if err != nil {
		return Principal{}, err
	}
	var p Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*User, error) {
	var u User
	err := s.DB.QueryRow(ctx,
		`SELECT id, name, email, phone, address, city FROM users WHERE id=$1`,
		userID).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Address, &u.City)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile mengubah data kontak; email sengaja tidak bisa diganti
// karena dipakai mencocokkan order lama.
func (s *Service) UpdateProfile(ctx context.Context, userID, name, phone, address, city string) error {
	ct, err := s.DB.Exec(ctx,
		`UPDATE users SET name=$2, phone=$3, address=$4, city=$5, updated_at=NOW() WHERE id=$1`,
		userID, name, phone, address, city)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	var hash string
	err := s.DB.QueryRow(ctx, `SELECT password_hash FROM users WHERE id=$1`, userID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, string(newHash))
	return err
}
