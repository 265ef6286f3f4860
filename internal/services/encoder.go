package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
)

// Encoder defaults.
const (
	DefaultImageColumn = "image"
	DefaultModel       = "gpt-4.1-nano"
	DefaultBatchSize   = 2000
	DefaultBatchDir    = "./batches"
)

// DefaultAltTextPrompt is used when no prompt file is configured.
const DefaultAltTextPrompt = `You are an expert in web accessibility and inclusive design.
Given the provided image, generate concise, descriptive alternative text suitable for use on a webpage.
The alternative text should clearly communicate the essential visual information to users who cannot see the image, such as screen reader users.
Follow best practices in web accessibility, including brevity (ideally fewer than 150 characters), relevance, and context-awareness.
Avoid redundant phrases like 'image of' or 'picture of' unless necessary for clarity.
Provide the alternative text directly without any additional explanation.`

// errUnsupportedImage marks images the encoder skips.
var errUnsupportedImage = errors.New("unsupported image format")

// EncoderConfig controls how dataset rows become batch request files.
type EncoderConfig struct {
	ImageColumn  string
	Model        string
	BatchSize    int
	OutputDir    string
	MaxImageSize int // longest side in pixels; 0 keeps the original size
	Prompt       string
}

func (c EncoderConfig) withDefaults() EncoderConfig {
	if c.ImageColumn == "" {
		c.ImageColumn = DefaultImageColumn
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultBatchDir
	}
	if c.Prompt == "" {
		c.Prompt = DefaultAltTextPrompt
	}
	return c
}

// RowSource is the read side of a dataset.
type RowSource interface {
	Len() int
	Get(row int, column string) (string, bool)
}

// Encoder writes one chat completion request per dataset row into JSONL batch
// input files of at most BatchSize rows each.
type Encoder struct {
	cfg EncoderConfig
}

// NewEncoder creates an encoder.
func NewEncoder(cfg EncoderConfig) *Encoder {
	return &Encoder{cfg: cfg.withDefaults()}
}

// Encode writes batch_<n>.jsonl files for rows and returns their paths.
// Image paths in the dataset resolve against baseDir. Rows whose image cannot
// be encoded are skipped but keep their index, so custom ids always match the
// dataset row.
func (e *Encoder) Encode(ctx context.Context, rows RowSource, baseDir string) ([]string, error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create batch directory '%s': %w", e.cfg.OutputDir, err)
	}

	total := rows.Len()
	batches := (total + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	log.Infof("Generating alt text requests for %d rows in batches of %d", total, e.cfg.BatchSize)

	var files []string
	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		start := b * e.cfg.BatchSize
		end := min(start+e.cfg.BatchSize, total)
		name := fmt.Sprintf("batch_%d.jsonl", b)
		req := openai.UploadBatchFileRequest{FileName: name}

		for row := start; row < end; row++ {
			url, err := e.imageURL(rows, row, baseDir)
			if err != nil {
				log.WithFields(log.Fields{"row": row, "error": err}).Warn("Skipping row without encodable image")
				continue
			}
			req.AddChatCompletion(models.FormatCustomID(row), e.chatRequest(url))
		}

		if len(req.Lines) == 0 {
			log.WithField("batch", b).Warn("Batch has no encodable rows, not writing a file")
			continue
		}
		path := filepath.Join(e.cfg.OutputDir, name)
		if err := os.WriteFile(path, req.MarshalJSONL(), 0640); err != nil {
			return files, fmt.Errorf("failed to write batch file '%s': %w", path, err)
		}
		log.WithFields(log.Fields{"batch": b, "requests": len(req.Lines), "path": path}).Info("Batch file saved")
		files = append(files, path)
	}

	log.Infof("Generated %d batch files in %s", len(files), e.cfg.OutputDir)
	return files, nil
}

func (e *Encoder) chatRequest(imageURL string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: e.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: e.cfg.Prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL, Detail: openai.ImageURLDetailAuto},
					},
				},
			},
		},
	}
}

// imageURL resolves the image column of row into a URL the model can read:
// remote URLs and data URIs pass through, local files become data URIs.
func (e *Encoder) imageURL(rows RowSource, row int, baseDir string) (string, error) {
	ref, ok := rows.Get(row, e.cfg.ImageColumn)
	if !ok || strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("column %q is empty", e.cfg.ImageColumn)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:image/") {
		return ref, nil
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	encoded, format, err := EncodeImageFile(path, e.cfg.MaxImageSize)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:image/%s;base64,%s", format, encoded), nil
}

// EncodeImageFile returns the base64 encoding of the image at path and its
// lower-case format name. Only JPEG, PNG, GIF and WEBP are accepted. Images
// whose longest side exceeds maxSize are scaled down; WEBP is passed through.
func EncodeImageFile(path string, maxSize int) (string, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read image: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return base64.StdEncoding.EncodeToString(raw), "webp", nil
	}

	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", errUnsupportedImage, filepath.Ext(path))
	}
	switch format {
	case imaging.JPEG, imaging.PNG, imaging.GIF:
	default:
		return "", "", fmt.Errorf("%w: %s", errUnsupportedImage, format)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", "", fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	if maxSize > 0 && (b.Dx() > maxSize || b.Dy() > maxSize) {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, imaging.Fit(img, maxSize, maxSize, imaging.Lanczos), format); err != nil {
			return "", "", fmt.Errorf("encode image: %w", err)
		}
		raw = buf.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw), strings.ToLower(format.String()), nil
}
