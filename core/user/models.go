package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Account kinds. Students and teachers live in separate identity namespaces.
const (
	KindStudent = "student"
	KindTeacher = "teacher"
)

const (
	SexFemale = "female"
	SexMale   = "male"
)

type User struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Identity     string    `json:"identity"`
	Email        string    `json:"email"`
	Sex          string    `json:"sex"`
	Birthdate    time.Time `json:"birthdate,omitempty"` // students only
	Group        string    `json:"group,omitempty"`     // students only
	PasswordHash []byte    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsStudent() bool { return u.Kind == KindStudent }
func (u *User) IsTeacher() bool { return u.Kind == KindTeacher }

// Age computes the student's age in whole years at the time of the call.
func (u *User) Age() int {
	if u.Birthdate.IsZero() {
		return 0
	}
	now := time.Now().UTC()
	age := now.Year() - u.Birthdate.Year()
	if now.YearDay() < u.Birthdate.YearDay() {
		age--
	}
	return age
}

// Record is a normalized person record parsed from a CSV upload.
// Password is single-use plaintext: it is hashed before persistence and is
// otherwise only observable in the one-time welcome email.
type Record struct {
	FirstName string // lower-cased
	LastName  string // lower-cased
	Email     string
	Sex       string
	Password  string
	SendMail  bool

	// students only
	Birthdate time.Time
	Group     string
}
