package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/insightverse/internal/ingest"
	"github.com/fyrsmithlabs/insightverse/internal/jobs"
)

func newHealthCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check insightd server health",
		Long: `Check the health status of the insightd HTTP server.

Examples:
  # Check health
  insight health

  # Check health on a different server
  insight health --server http://localhost:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client()
			var resp HealthResponse
			if err := c.do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			if resp.Version != "" {
				fmt.Fprintf(out, "Server Version: %s\n", resp.Version)
			}
			fmt.Fprintf(out, "Server URL: %s\n", c.baseURL)
			return nil
		},
	}
}

func newUploadCmd(client func() *apiClient) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a PDF, Word document or video",
		Long: `Request a presigned upload URL, upload the file to object storage and
print the storage reference to pass to "insight submit --file".

Examples:
  insight upload lecture.pdf
  insight upload talk.mp4 --type video/mp4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read file %s: %w", path, err)
			}
			ct := contentType
			if ct == "" {
				ct = guessContentType(path)
			}
			if ct == "" {
				return fmt.Errorf("cannot infer content type of %s, use --type", path)
			}

			c := client()
			var presign PresignResponse
			req := map[string]string{"filename": filepath.Base(path), "contentType": ct}
			if err := c.do(cmd.Context(), http.MethodPost, "/api/upload/presign", req, &presign); err != nil {
				return err
			}
			if !presign.Success {
				return fmt.Errorf("%s: %s", presign.Message, presign.ReceivedType)
			}

			if err := c.put(cmd.Context(), presign.UploadURL, ct, data); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), presign.FileURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "media type of the file (inferred from the extension when empty)")
	return cmd
}

// guessContentType maps common extensions to the media types the server
// accepts, then falls back to the system mime table.
func guessContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".mp4":
		return "video/mp4"
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// submitOptions collects the flags of the submit command.
type submitOptions struct {
	fileURL        string
	fileType       string
	link           string
	linkType       string
	query          string
	userID         string
	summary        []string
	concept        []string
	quizDifficulty string
	quizTypes      []string
	flashcards     bool
}

// payload builds and validates the submission described by the flags.
func (o submitOptions) payload() (ingest.Payload, error) {
	p := ingest.Payload{
		Query:  o.query,
		UserID: o.userID,
		Services: ingest.Services{
			Summary:    o.summary,
			Concept:    o.concept,
			Flashcards: o.flashcards,
		},
	}

	switch {
	case o.fileURL != "" && o.link != "":
		return ingest.Payload{}, errors.New("--file and --link are mutually exclusive")
	case o.fileURL != "":
		p.Kind = ingest.KindFile
		ft := o.fileType
		if ft == "" {
			ft = guessContentType(o.fileURL)
		}
		p.File = &ingest.FileSource{FileType: ft, FileURL: o.fileURL}
	case o.link != "":
		p.Kind = ingest.KindLink
		lt := o.linkType
		if lt == "" {
			lt = guessLinkType(o.link)
		}
		p.Link = &ingest.LinkSource{LinkType: ingest.LinkType(lt), URL: o.link}
	default:
		return ingest.Payload{}, errors.New("one of --file or --link is required")
	}

	if len(o.quizTypes) > 0 {
		types := make([]ingest.QuizType, len(o.quizTypes))
		for i, t := range o.quizTypes {
			types[i] = ingest.QuizType(t)
		}
		p.Services.Quiz = &ingest.QuizRequest{Difficulty: o.quizDifficulty, Types: types}
	}

	if err := p.Validate(); err != nil {
		return ingest.Payload{}, err
	}
	return p, nil
}

func guessLinkType(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return string(ingest.LinkWebsite)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") {
		return string(ingest.LinkYouTube)
	}
	return string(ingest.LinkWebsite)
}

func newSubmitCmd(client func() *apiClient) *cobra.Command {
	var o submitOptions

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a file or link for processing",
		Long: `Submit an uploaded file or a link and request study aids.

Examples:
  # Summaries and flashcards from an uploaded PDF
  insight submit --file s3://pdfs/lecture.pdf --summary short --flashcards

  # A quiz from a YouTube video
  insight submit --link https://youtu.be/dQw4w9WgXcQ --quiz-types mcq,true_false

  # Index a website without generation
  insight submit --link https://example.com/article`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := o.payload()
			if err != nil {
				return err
			}
			var resp SubmitResponse
			if err := client().do(cmd.Context(), http.MethodPost, "/api/upload/data", p, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job ID: %s\n", resp.JobID)
			fmt.Fprintf(out, "Status: %s\n", resp.Status)
			if resp.Message != "" {
				fmt.Fprintf(out, "Message: %s\n", resp.Message)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.fileURL, "file", "", "storage reference of an uploaded file (s3://bucket/object)")
	f.StringVar(&o.fileType, "type", "", "media type of --file (inferred from the extension when empty)")
	f.StringVar(&o.link, "link", "", "website or YouTube URL")
	f.StringVar(&o.linkType, "link-type", "", "website or youtube (inferred from the URL when empty)")
	f.StringVar(&o.query, "query", "", "focus query for retrieving generation context")
	f.StringVar(&o.userID, "user", "", "user id attached to indexed chunks")
	f.StringSliceVar(&o.summary, "summary", nil, "summary lengths, e.g. short,detailed")
	f.StringSliceVar(&o.concept, "concept", nil, "concept explanation modes, e.g. simple")
	f.StringVar(&o.quizDifficulty, "quiz-difficulty", "medium", "quiz difficulty")
	f.StringSliceVar(&o.quizTypes, "quiz-types", nil, "quiz types: short_answer, mcq, true_false")
	f.BoolVar(&o.flashcards, "flashcards", false, "generate revision flashcards")
	return cmd
}

func fetchStatus(ctx context.Context, c *apiClient, jobID string) (jobs.View, error) {
	var view jobs.View
	err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(jobID), nil, &view)
	return view, err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status and result of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := fetchStatus(cmd.Context(), client(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newWaitCmd(client func() *apiClient) *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it completes or fails",
		Long: `Poll a job until it reaches COMPLETED or ERROR and print its final state.
Exits non-zero when the job failed or the timeout elapsed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c := client()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				view, err := fetchStatus(ctx, c, args[0])
				if err != nil {
					return err
				}
				if view.Status.Terminal() {
					if err := printJSON(cmd.OutOrStdout(), view); err != nil {
						return err
					}
					if view.Status == jobs.StatusError {
						return fmt.Errorf("job %s failed: %s", args[0], view.Error)
					}
					return nil
				}

				select {
				case <-ctx.Done():
					return fmt.Errorf("job %s still %s: %w", args[0], view.Status, ctx.Err())
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "give up after this long")
	return cmd
}

func newAskCmd(client func() *apiClient) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about indexed content",
		Long: `Ask a question answered only from indexed content.

Examples:
  insight ask "What is photosynthesis?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"jobId":    jobID,
				"question": strings.Join(args, " "),
			}
			var resp ChatResponse
			if err := client().do(cmd.Context(), http.MethodPost, "/api/chat", req, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job the question refers to")
	return cmd
}
