package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"review-api/internal/core/auth"
	"review-api/internal/core/notify"
	"review-api/internal/domain"
	"review-api/internal/feature/catalog"
	"review-api/internal/repo"
	"review-api/internal/testutil"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (o *outbox) Send(_ context.Context, m notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, m)
	return nil
}

func (o *outbox) last(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1].Body
}

type fixture struct {
	db        *gorm.DB
	users     *repo.UserRepo
	mail      *outbox
	issuer    *Issuer
	exchanger *Exchanger
	jwt       *auth.JWTer
	svc       *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	users := repo.NewUserRepo(db)
	mail := &outbox{}
	jwter := &auth.JWTer{Secret: []byte("test"), Issuer: "test", TTL: time.Hour}
	return &fixture{
		db:    db,
		users: users,
		mail:  mail,
		issuer: NewIssuer(users, mail, IssuerOptions{
			CodeLength:       20,
			BcryptCost:       bcrypt.MinCost,
			ReservedUsername: "me",
			From:             "admin@admin.org",
			Subject:          "Confirmation code",
		}, nil),
		exchanger: NewExchanger(users, jwter, nil),
		jwt:       jwter,
		svc:       NewUserService(users, "me", nil),
	}
}

func requireFields(t *testing.T, err error, fields ...string) {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrValidation)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	for _, f := range fields {
		assert.Contains(t, ve.Fields, f)
	}
}

func TestRequestCodeCreatesIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.issuer.RequestCode(ctx, SignupInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, SignupInput{Username: "alice", Email: "a@x.com"}, out)

	u, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, u.Role)

	require.Len(t, f.mail.sent, 1)
	msg := f.mail.sent[0]
	assert.Equal(t, []string{"a@x.com"}, msg.To)
	assert.Equal(t, "admin@admin.org", msg.From)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{20}$`), msg.Body)
	assert.NotEqual(t, msg.Body, u.ConfirmationCode, "only the hash is stored")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.ConfirmationCode), []byte(msg.Body)))
}

func TestRequestCodeReservedUsername(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, email := range []string{"me@x.com", "", "bad"} {
		_, err := f.issuer.RequestCode(context.Background(), SignupInput{Username: "me", Email: email})
		requireFields(t, err, "username")
	}
	assert.Empty(t, f.mail.sent)
}

func TestRequestCodeValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cases := []struct {
		name   string
		in     SignupInput
		fields []string
	}{
		{"missing both", SignupInput{}, []string{"username", "email"}},
		{"bad email", SignupInput{Username: "bob", Email: "not-an-email"}, []string{"email"}},
		{"bad username", SignupInput{Username: "bob smith", Email: "b@x.com"}, []string{"username"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.issuer.RequestCode(context.Background(), tc.in)
			requireFields(t, err, tc.fields...)
		})
	}
	assert.Empty(t, f.mail.sent)
}

func TestRequestCodeTakenByOtherRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.issuer.RequestCode(ctx, SignupInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	before, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	_, err = f.issuer.RequestCode(ctx, SignupInput{Username: "alice", Email: "other@x.com"})
	requireFields(t, err, "username")

	_, err = f.issuer.RequestCode(ctx, SignupInput{Username: "bob", Email: "a@x.com"})
	requireFields(t, err, "email")

	after, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before.ConfirmationCode, after.ConfirmationCode, "no mutation on failure")
	assert.Len(t, f.mail.sent, 1, "no notification on failure")
	_, err = f.users.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	in := SignupInput{Username: "alice", Email: "a@x.com"}

	_, err := f.issuer.RequestCode(ctx, in)
	require.NoError(t, err)
	c1 := f.mail.last(t)
	u1, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)

	tok, err := f.exchanger.Exchange(ctx, TokenInput{Username: "alice", ConfirmationCode: c1})
	require.NoError(t, err)
	claims, err := f.jwt.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u1.ID, claims.UID)

	_, err = f.issuer.RequestCode(ctx, in)
	require.NoError(t, err)
	c2 := f.mail.last(t)
	u2, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, u2.ID, "same identity")
	assert.NotEqual(t, u1.ConfirmationCode, u2.ConfirmationCode)

	_, err = f.exchanger.Exchange(ctx, TokenInput{Username: "alice", ConfirmationCode: c1})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.exchanger.Exchange(ctx, TokenInput{Username: "alice", ConfirmationCode: c2})
	assert.NoError(t, err)
}

func TestExchangeReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.issuer.RequestCode(ctx, SignupInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	code := f.mail.last(t)

	for i := 0; i < 3; i++ {
		tok, err := f.exchanger.Exchange(ctx, TokenInput{Username: "alice", ConfirmationCode: code})
		require.NoError(t, err, "attempt %d", i)
		assert.NotEmpty(t, tok.AccessToken)
	}
}

func TestExchangeErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.issuer.RequestCode(ctx, SignupInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = f.exchanger.Exchange(ctx, TokenInput{})
	requireFields(t, err, "username", "confirmation_code")

	_, err = f.exchanger.Exchange(ctx, TokenInput{Username: "ghost", ConfirmationCode: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.exchanger.Exchange(ctx, TokenInput{Username: "alice", ConfirmationCode: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestExchangeWithoutIssuedCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateSuperuser(ctx, "root", "root@x.com")
	require.NoError(t, err)

	_, err = f.exchanger.Exchange(ctx, TokenInput{Username: "root", ConfirmationCode: ""})
	requireFields(t, err, "confirmation_code")
	_, err = f.exchanger.Exchange(ctx, TokenInput{Username: "root", ConfirmationCode: "anything"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRequestCodeDeliveryFailureKeepsHash(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.mail.err = errors.New("smtp down")

	_, err := f.issuer.RequestCode(ctx, SignupInput{Username: "alice", Email: "a@x.com"})
	require.ErrorIs(t, err, domain.ErrDelivery)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	u, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ConfirmationCode)
}

func TestUpdateMeForcesUserRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.svc.Create(ctx, UserInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	admin := domain.RoleAdmin
	bio := "reader"
	got, err := f.svc.UpdateMe(ctx, u.ID, domain.UserPatch{Role: &admin, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.Equal(t, "reader", got.Bio)

	stored, err := f.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, stored.Role)
}

func TestUpdateMeModeratorMayChangeRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	u, err := f.svc.Create(ctx, UserInput{Username: "mod", Email: "m@x.com", Role: domain.RoleModerator})
	require.NoError(t, err)

	user := domain.RoleUser
	got, err := f.svc.UpdateMe(ctx, u.ID, domain.UserPatch{Role: &user})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, got.Role)
}

func TestUserServiceCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, UserInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, UserInput{Username: "me", Email: "me@x.com"})
	requireFields(t, err, "username")
	_, err = f.svc.Create(ctx, UserInput{Username: "alice", Email: "a2@x.com"})
	requireFields(t, err, "username")
	_, err = f.svc.Create(ctx, UserInput{Username: "alice2", Email: "a@x.com"})
	requireFields(t, err, "email")
	_, err = f.svc.Create(ctx, UserInput{Username: "bob", Email: "b@x.com", Role: "overlord"})
	requireFields(t, err, "role")
	_, err = f.svc.Create(ctx, UserInput{Username: "bob", Email: "b@x.com", Role: domain.RoleAnonymous})
	requireFields(t, err, "role")
}

func TestUserServiceUpdateAndDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, UserInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, UserInput{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	taken := "b@x.com"
	_, err = f.svc.Update(ctx, "alice", domain.UserPatch{Email: &taken})
	requireFields(t, err, "email")

	same := "a@x.com"
	got, err := f.svc.Update(ctx, "alice", domain.UserPatch{Email: &same})
	require.NoError(t, err, "re-submitting own email is not a collision")
	assert.Equal(t, "a@x.com", got.Email)

	got, err = f.svc.SetRole(ctx, "alice", domain.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, got.Role)

	require.NoError(t, f.svc.Delete(ctx, "alice"))
	_, err = f.svc.Get(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, "alice"), domain.ErrNotFound)
}

func TestCreateSuperuser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u, err := f.svc.CreateSuperuser(context.Background(), "root", "root@x.com")
	require.NoError(t, err)
	assert.True(t, u.IsSuperuser)
	assert.Equal(t, domain.RoleAdmin, u.Role)
}

// racingRepo loses every Create to a concurrent writer that stores the same
// username and email first.
type racingRepo struct {
	*repo.UserRepo
}

func (r racingRepo) Create(ctx context.Context, u *domain.User) error {
	winner := &domain.User{Username: u.Username, Email: u.Email, Role: domain.RoleUser}
	if err := r.UserRepo.Create(ctx, winner); err != nil {
		return err
	}
	return r.UserRepo.Create(ctx, u)
}

func TestRequestCodeLosesUniquenessRace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issuer := NewIssuer(racingRepo{f.users}, f.mail, IssuerOptions{BcryptCost: bcrypt.MinCost, ReservedUsername: "me"}, nil)

	_, err := issuer.RequestCode(context.Background(), SignupInput{Username: "alice", Email: "a@x.com"})
	requireFields(t, err, "username", "email")
	assert.NotErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, f.mail.sent, "no code is mailed for a lost race")

	u, err := f.users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, u.ConfirmationCode, "the winner's record is untouched")
}

type evictions struct {
	mu   sync.Mutex
	keys []string
}

func (e *evictions) Invalidate(_ context.Context, keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, keys...)
}

func TestDeleteUserEvictsRatedTitles(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ev := &evictions{}
	f.svc.WithTitleCache(ev)

	alice, err := f.svc.Create(ctx, UserInput{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	bob, err := f.svc.Create(ctx, UserInput{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)
	titles := []domain.Title{{Name: "Heat", Year: 1995}, {Name: "Ronin", Year: 1998}, {Name: "Dune", Year: 1965}}
	require.NoError(t, f.db.Create(&titles).Error)
	for _, r := range []domain.Review{
		{TitleID: titles[0].ID, AuthorID: alice.ID, Text: "x", Score: 8},
		{TitleID: titles[1].ID, AuthorID: alice.ID, Text: "y", Score: 3},
		{TitleID: titles[2].ID, AuthorID: bob.ID, Text: "z", Score: 6},
	} {
		require.NoError(t, f.db.Create(&r).Error)
	}

	require.NoError(t, f.svc.Delete(ctx, "alice"))
	assert.ElementsMatch(t, []string{catalog.CacheKey(titles[0].ID), catalog.CacheKey(titles[1].ID)}, ev.keys)

	require.NoError(t, f.svc.Delete(ctx, "bob"))
	assert.Contains(t, ev.keys, catalog.CacheKey(titles[2].ID))
}
