package userstore

import (
	"context"
	"testing"
)

func newTestOAuthDatabase(t *testing.T) *OAuthDatabase[testUser] {
	t.Helper()
	store, err := NewWithOAuth[testUser](openTestDB(t))
	if err != nil {
		t.Fatalf("failed to create oauth database: %v", err)
	}
	return store
}

func createOAuthUser(t *testing.T, store *OAuthDatabase[testUser], email string) testUser {
	t.Helper()
	user := testUser{BaseUser: BaseUser{
		Email:          email,
		HashedPassword: "guinevere",
	}}
	if err := store.Create(context.Background(), &user); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return user
}

func TestGetByOAuthAccountResolvesOwningUser(t *testing.T) {
	store := newTestOAuthDatabase(t)
	ctx := context.Background()
	user := createOAuthUser(t, store, "arthur@camelot.bt")

	account := OAuthAccount{
		Provider:     "service1",
		AccountID:    "user_oauth1",
		AccountEmail: "king.arthur@camelot.bt",
		AccessToken:  "TOKEN",
	}
	if err := store.AddOAuthAccount(ctx, &user, &account); err != nil {
		t.Fatalf("add oauth account failed: %v", err)
	}
	if account.UserID != user.ID {
		t.Fatalf("expected account to be linked to %s, got %s", user.ID, account.UserID)
	}

	owner, err := store.GetByOAuthAccount(ctx, "service1", "user_oauth1")
	if err != nil {
		t.Fatalf("get by oauth account failed: %v", err)
	}
	if owner == nil {
		t.Fatal("expected owning user to be resolved")
	}
	if owner.ID != user.ID {
		t.Fatalf("unexpected owner: got %s, want %s", owner.ID, user.ID)
	}
}

func TestGetByOAuthAccountUnknownReturnsAbsence(t *testing.T) {
	store := newTestOAuthDatabase(t)

	owner, err := store.GetByOAuthAccount(context.Background(), "foo", "bar")
	if err != nil {
		t.Fatalf("get by oauth account failed: %v", err)
	}
	if owner != nil {
		t.Fatalf("expected absence for unknown oauth account, got %+v", owner)
	}
}

func TestOAuthAccountsListsLinkedAccounts(t *testing.T) {
	store := newTestOAuthDatabase(t)
	ctx := context.Background()
	user := createOAuthUser(t, store, "arthur@camelot.bt")

	expires := int64(1579000751)
	first := OAuthAccount{
		Provider:     "service1",
		AccountID:    "user_oauth1",
		AccountEmail: "king.arthur@camelot.bt",
		AccessToken:  "TOKEN",
		ExpiresAt:    &expires,
	}
	second := OAuthAccount{
		Provider:     "service2",
		AccountID:    "user_oauth2",
		AccountEmail: "king.arthur@camelot.bt",
		AccessToken:  "TOKEN",
	}
	if err := store.AddOAuthAccount(ctx, &user, &first); err != nil {
		t.Fatalf("add first oauth account failed: %v", err)
	}
	if err := store.AddOAuthAccount(ctx, &user, &second); err != nil {
		t.Fatalf("add second oauth account failed: %v", err)
	}

	accounts, err := store.OAuthAccounts(ctx, &user)
	if err != nil {
		t.Fatalf("listing oauth accounts failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 linked accounts, got %d", len(accounts))
	}
	if accounts[0].AccountID != "user_oauth1" || accounts[1].AccountID != "user_oauth2" {
		t.Fatalf("unexpected account order: %q, %q", accounts[0].AccountID, accounts[1].AccountID)
	}
	if accounts[0].ExpiresAt == nil || *accounts[0].ExpiresAt != expires {
		t.Fatalf("expected expiry to be persisted, got %v", accounts[0].ExpiresAt)
	}
}

func TestAddOAuthAccountDuplicatePairFails(t *testing.T) {
	store := newTestOAuthDatabase(t)
	ctx := context.Background()
	arthur := createOAuthUser(t, store, "arthur@camelot.bt")
	lancelot := createOAuthUser(t, store, "lancelot@camelot.bt")

	account := OAuthAccount{
		Provider:     "service1",
		AccountID:    "user_oauth1",
		AccountEmail: "king.arthur@camelot.bt",
		AccessToken:  "TOKEN",
	}
	if err := store.AddOAuthAccount(ctx, &arthur, &account); err != nil {
		t.Fatalf("add oauth account failed: %v", err)
	}

	duplicate := OAuthAccount{
		Provider:     "service1",
		AccountID:    "user_oauth1",
		AccountEmail: "lancelot@camelot.bt",
		AccessToken:  "OTHER",
	}
	if err := store.AddOAuthAccount(ctx, &lancelot, &duplicate); err == nil {
		t.Fatal("expected duplicate provider/account pair to fail")
	}
}

func TestUpdateOAuthAccount(t *testing.T) {
	store := newTestOAuthDatabase(t)
	ctx := context.Background()
	user := createOAuthUser(t, store, "arthur@camelot.bt")

	account := OAuthAccount{
		Provider:     "service1",
		AccountID:    "user_oauth1",
		AccountEmail: "king.arthur@camelot.bt",
		AccessToken:  "TOKEN",
	}
	if err := store.AddOAuthAccount(ctx, &user, &account); err != nil {
		t.Fatalf("add oauth account failed: %v", err)
	}

	if err := store.UpdateOAuthAccount(ctx, &account, map[string]any{"access_token": "NEW_TOKEN"}); err != nil {
		t.Fatalf("update oauth account failed: %v", err)
	}
	if account.AccessToken != "NEW_TOKEN" {
		t.Fatalf("expected refreshed access token, got %q", account.AccessToken)
	}

	accounts, err := store.OAuthAccounts(ctx, &user)
	if err != nil {
		t.Fatalf("listing oauth accounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].AccessToken != "NEW_TOKEN" {
		t.Fatalf("expected persisted token update, got %+v", accounts)
	}
}

func TestDeleteRemovesDependentOAuthAccounts(t *testing.T) {
	store := newTestOAuthDatabase(t)
	ctx := context.Background()
	user := createOAuthUser(t, store, "arthur@camelot.bt")

	account := OAuthAccount{
		Provider:     "service1",
		AccountID:    "user_oauth1",
		AccountEmail: "king.arthur@camelot.bt",
		AccessToken:  "TOKEN",
	}
	if err := store.AddOAuthAccount(ctx, &user, &account); err != nil {
		t.Fatalf("add oauth account failed: %v", err)
	}

	if err := store.Delete(ctx, &user); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	found, err := store.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found != nil {
		t.Fatalf("expected absence after delete, got %+v", found)
	}

	owner, err := store.GetByOAuthAccount(ctx, "service1", "user_oauth1")
	if err != nil {
		t.Fatalf("get by oauth account failed: %v", err)
	}
	if owner != nil {
		t.Fatal("expected linked accounts to be removed with the user")
	}
}
