// Command drawclient is the command line companion for Superfun Draw: log in
// with a one-time code, check your token balance, buy more, and render a
// whole coloring book in one run.
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/superfun/draw-backend/internal/album"
	"github.com/superfun/draw-backend/internal/generation"
	"github.com/superfun/draw-backend/internal/orchestrator"
	"github.com/superfun/draw-backend/internal/session"
)

const defaultBackend = "https://draw.superfun.games"

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "login":
		err = cmdLogin(ctx, os.Args[2:])
	case "logout":
		err = cmdLogout()
	case "balance":
		err = cmdBalance(ctx)
	case "topup":
		err = cmdTopup(ctx, os.Args[2:])
	case "draw":
		err = cmdDraw(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: drawclient <command> [flags]

Commands:
  login   -code <code> | -email <address>   log in with a one-time code, or request one by email
  logout                                    forget the saved session
  balance                                   show the current token balance
  topup   -plan <micro|tinker|pro>          start a checkout for more tokens
  draw    -prompts <file> -out <book.pdf>   render prompts into a coloring book PDF`)
}

func backendURL() string {
	if url := os.Getenv("DRAW_BACKEND_URL"); url != "" {
		return url
	}
	return defaultBackend
}

func loadSession(cache *session.Cache) (*session.Session, error) {
	sess, err := cache.Load()
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Token == "" {
		return nil, fmt.Errorf("not logged in, run: drawclient login -code <code>")
	}
	return sess, nil
}

func cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	code := fs.String("code", "", "one-time auth code from your email")
	email := fs.String("email", "", "request a fresh code for this address")
	fs.Parse(args)

	api := newAPIClient(backendURL(), "")

	if *email != "" {
		if err := api.RequestCode(ctx, *email); err != nil {
			return err
		}
		log.Printf("Login code sent to %s. Run: drawclient login -code <code>", *email)
		return nil
	}

	if *code == "" {
		return fmt.Errorf("either -code or -email is required")
	}

	resp, err := api.Login(ctx, *code)
	if err != nil {
		return err
	}

	cache := &session.Cache{}
	if err := cache.Save(&session.Session{
		Email:  resp.Email,
		Token:  resp.Token,
		Tokens: resp.Balance,
	}); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	if resp.Degraded {
		log.Printf("Logged in (offline mode). Balance from your code: %d tokens", resp.Balance)
		log.Println("The account store was unreachable; the balance will resync on the next run.")
	} else {
		log.Printf("Logged in as %s. Balance: %d tokens", resp.Email, resp.Balance)
	}
	return nil
}

func cmdLogout() error {
	cache := &session.Cache{}
	if err := cache.Clear(); err != nil {
		return err
	}
	log.Println("Logged out")
	return nil
}

func cmdBalance(ctx context.Context) error {
	cache := &session.Cache{}
	sess, err := loadSession(cache)
	if err != nil {
		return err
	}

	api := newAPIClient(backendURL(), sess.Token)
	balance, err := api.Balance(ctx)
	if err != nil {
		// fall back to the cached count so the command still answers offline
		log.Printf("Balance (cached, server unreachable): %d tokens", sess.Tokens)
		return nil
	}

	if balance != sess.Tokens {
		sess.Tokens = balance
		cache.Save(sess)
	}

	log.Printf("Balance: %d tokens", balance)
	return nil
}

func cmdTopup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("topup", flag.ExitOnError)
	plan := fs.String("plan", "tinker", "plan to buy: micro, tinker or pro")
	fs.Parse(args)

	cache := &session.Cache{}
	sess, err := loadSession(cache)
	if err != nil {
		return err
	}
	if sess.Email == "" {
		return fmt.Errorf("offline sessions cannot start a checkout, log in with a fresh emailed code first")
	}

	api := newAPIClient(backendURL(), sess.Token)
	checkout, err := api.Checkout(ctx, sess.Email, *plan)
	if err != nil {
		return err
	}

	log.Printf("Open this link to pay:\n\n  %s\n", checkout.URL)
	log.Println("Your new tokens and a fresh login code arrive by email after payment.")
	return nil
}

func cmdDraw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("draw", flag.ExitOnError)
	promptsPath := fs.String("prompts", "", "file with one drawing prompt per line")
	out := fs.String("out", "coloring-book.pdf", "output PDF path")
	ratio := fs.String("ratio", "1024x1536", "render size: 1024x1024, 1024x1536 or 1536x1024")
	quality := fs.String("quality", "low", "render quality: low, medium or high")
	style := fs.String("style", "simple line art for kids to color in", "style folded into every prompt")
	improve := fs.Bool("improve", false, "rewrite each prompt with the model before rendering")
	fs.Parse(args)

	if *promptsPath == "" {
		return fmt.Errorf("-prompts is required")
	}

	prompts, err := readPrompts(*promptsPath)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts in %s", *promptsPath)
	}

	cache := &session.Cache{}
	sess, err := loadSession(cache)
	if err != nil {
		return err
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for rendering")
	}

	api := newAPIClient(backendURL(), sess.Token)
	gen := generation.NewClient(apiKey)

	if *improve {
		for i, prompt := range prompts {
			improved, err := api.ImprovePrompt(ctx, prompt)
			if err != nil {
				log.Printf("Prompt %d kept as-is (improve failed: %v)", i+1, err)
				continue
			}
			prompts[i] = improved
		}
	}

	jobs := make([]*orchestrator.Job, len(prompts))
	for i, prompt := range prompts {
		jobs[i] = orchestrator.NewJob(generation.Request{
			Prompt:  prompt,
			Size:    *ratio,
			Quality: *quality,
			Style:   *style,
		})
	}

	// jobs in one batch finish concurrently; the cached balance needs a lock
	var mu sync.Mutex
	localBalance := func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return sess.Tokens
	}
	setBalance := func(v int64) {
		mu.Lock()
		sess.Tokens = v
		mu.Unlock()
	}

	o := &orchestrator.Orchestrator{
		Submit: func(ctx context.Context, job *orchestrator.Job) (*generation.Result, error) {
			result, err := gen.GenerateImage(ctx, job.Request)
			if err != nil {
				return nil, err
			}
			newBalance, spendErr := api.Spend(ctx, result.TokensUsed, localBalance(), "render")
			if spendErr != nil {
				log.Printf("Balance report failed, the server will resync later: %v", spendErr)
			} else {
				setBalance(newBalance)
			}
			return result, nil
		},
		Balance: func(ctx context.Context) (int64, error) {
			if balance, err := api.Balance(ctx); err == nil {
				setBalance(balance)
			}
			return localBalance(), nil
		},
		OnUpdate: func(job *orchestrator.Job) {
			switch job.Status() {
			case orchestrator.StatusRunning:
				log.Printf("Drawing: %s", job.Request.Prompt)
			case orchestrator.StatusDone:
				log.Printf("Finished: %s", job.Request.Prompt)
			case orchestrator.StatusFailed:
				log.Printf("Failed: %s (%v)", job.Request.Prompt, job.Err())
			case orchestrator.StatusSkipped:
				log.Printf("Skipped (out of tokens): %s", job.Request.Prompt)
				log.Println("Top up with: drawclient topup -plan tinker")
			}
		},
		OnCountdown: func(job *orchestrator.Job, secondsLeft int) {
			if secondsLeft%10 == 0 || secondsLeft <= 5 {
				log.Printf("Next batch in %ds...", secondsLeft)
			}
		},
	}

	if err := o.Run(ctx, jobs); err != nil {
		return err
	}

	var pages []album.Page
	for _, job := range jobs {
		result := job.Result()
		if result == nil || result.ImageB64 == "" {
			continue
		}
		png, err := base64.StdEncoding.DecodeString(result.ImageB64)
		if err != nil {
			log.Printf("Skipping undecodable page for %q: %v", job.Request.Prompt, err)
			continue
		}
		pages = append(pages, album.Page{Title: job.Request.Prompt, ImagePNG: png})
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages rendered, nothing to assemble")
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := album.Build(f, pages, album.Options{Title: "Superfun Coloring Book", Ratio: *ratio}); err != nil {
		return fmt.Errorf("assembling PDF: %w", err)
	}

	cache.Save(sess)
	log.Printf("Done: %d pages in %s (balance: %d tokens)", len(pages), *out, sess.Tokens)
	return nil
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts, scanner.Err()
}
