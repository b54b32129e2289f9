package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"gorm.io/gorm"

	"github.com/numanijaz119/Audio-to-text/internal/models"
	"github.com/numanijaz119/Audio-to-text/internal/services/wallet"
	"github.com/numanijaz119/Audio-to-text/internal/utils"
)

type FacebookOAuthHandler struct {
	DB               *gorm.DB
	Wallet           *wallet.Service
	JWTSecret        string
	Expires          int
	FacebookAppID    string
	FacebookSecret   string
	FacebookRedirect string
	FrontendBaseURL  string
}

func (h *FacebookOAuthHandler) oauthCfg() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.FacebookAppID,
		ClientSecret: h.FacebookSecret,
		RedirectURL:  h.FacebookRedirect,
		Endpoint:     facebook.Endpoint,
		Scopes:       []string{"email", "public_profile"},
	}
}

func (h *FacebookOAuthHandler) FacebookStart(c *fiber.Ctx) error {
	next := c.Query("next", "/")
	st := randomState(32)

	setOAuthCookies(c, st, next)

	return c.Redirect(h.oauthCfg().AuthCodeURL(st), http.StatusTemporaryRedirect)
}

type facebookUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *FacebookOAuthHandler) FacebookCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	if code == "" || state == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing code/state")
	}

	stCookie := c.Cookies("oauth_state")
	next := c.Cookies("oauth_next")
	if next == "" {
		next = "/"
	}

	if stCookie == "" || stCookie != state {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid state")
	}

	tok, err := h.oauthCfg().Exchange(c.Context(), code)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Failed to exchange code")
	}

	client := h.oauthCfg().Client(c.Context(), tok)
	resp, err := client.Get("https://graph.facebook.com/me?fields=id,name,email")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Failed to fetch userinfo")
	}
	defer resp.Body.Close()

	var fu facebookUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&fu); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Failed to decode userinfo")
	}

	email := strings.ToLower(strings.TrimSpace(fu.Email))
	name := strings.TrimSpace(fu.Name)
	if email == "" || fu.ID == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Email not found from Facebook")
	}

	u, err := upsertOAuthUser(h.DB, h.Wallet, models.ProviderFacebook, fu.ID, email, name)
	if err != nil {
		log.Println("Error upserting user via Facebook:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create account",
		})
	}

	if !u.IsActive {
		u2 := h.FrontendBaseURL + "/auth/login?err=" + url.QueryEscape("Account is disabled")
		return c.Redirect(u2, http.StatusTemporaryRedirect)
	}

	jwtToken, err := utils.SignJWT(h.JWTSecret, u.ID.String(), h.Expires)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to sign jwt")
	}

	setSessionCookie(c, jwtToken, h.Expires)
	clearOAuthCookies(c)

	redirectURL := h.FrontendBaseURL + next
	if !strings.HasPrefix(next, "/") {
		redirectURL = h.FrontendBaseURL + "/"
	}

	return c.Redirect(redirectURL, http.StatusTemporaryRedirect)
}
