// Smoke test against a running API: sign in, read every session-scoped
// surface, sign out, and verify the session is really gone.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"
)

func main() {
	base := os.Getenv("DQ_API_ADDR")
	if base == "" {
		base = "http://localhost:8080"
	}
	username := os.Getenv("DQ_SMOKE_USERNAME")
	password := os.Getenv("DQ_SMOKE_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("set DQ_SMOKE_USERNAME and DQ_SMOKE_PASSWORD")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	resp, err := client.Post(base+"/v1/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("login status %d", resp.StatusCode)
	}
	var info struct {
		Username string   `json:"username"`
		Domains  []string `json:"domains"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		log.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	fmt.Printf("signed in as %s, domains %v\n", info.Username, info.Domains)

	mustGet(client, base+"/v1/auth/session", http.StatusOK)
	mustGet(client, base+"/v1/domains", http.StatusOK)
	mustGet(client, base+"/v1/tables", http.StatusOK)
	mustGet(client, base+"/v1/dq/summary", http.StatusOK)
	mustGet(client, base+"/v1/dq/results?limit=5", http.StatusOK)

	resp, err = client.Post(base+"/v1/auth/logout", "application/json", nil)
	if err != nil {
		log.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		log.Fatalf("logout status %d", resp.StatusCode)
	}

	// The cleared cookie must not restore a session.
	mustGet(client, base+"/v1/auth/session", http.StatusUnauthorized)

	fmt.Println("smoke-session: PASS")
}

func mustGet(client *http.Client, url string, want int) {
	resp, err := client.Get(url)
	if err != nil {
		log.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		log.Fatalf("get %s: status %d, want %d", url, resp.StatusCode, want)
	}
}
