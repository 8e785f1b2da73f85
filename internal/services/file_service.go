// Package services – FileService
//
// This file implements FileService, which records uploaded files and produces
// the assistant-side analysis for messages that carry an attachment. The
// analysis strategy is keyed on the file type: images go through the Vision
// API, text files are previewed and summarized, and binary formats (PDF,
// Office documents, archives, APKs, audio, video) get a structured
// type-specific description since their content is not extracted server-side.
//
// Files live on local disk under UploadDir and are served back at /uploads/.
package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/ai"
	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/repo"
)

// textPreviewRunes caps how much of a text upload is quoted in the analysis.
const textPreviewRunes = 500

// FileService records upload metadata and analyzes attachments.
type FileService struct {
	DB *gorm.DB
	AI ai.Responder

	// UploadDir is the local directory uploads are written to.
	UploadDir string
}

// Record persists the metadata of a file already written to disk and returns
// the stored record. The public URL is /uploads/<storedName>.
func (s *FileService) Record(ctx context.Context, userID, storedName, originalName, mimeType string, size int64) (*domain.UploadedFile, error) {
	f := &domain.UploadedFile{
		UserID:       userID,
		FileName:     storedName,
		OriginalName: originalName,
		FileType:     mimeType,
		FileSize:     size,
		FilePath:     filepath.Join(s.UploadDir, storedName),
	}
	return repo.CreateUploadedFile(ctx, s.DB, f)
}

// List returns the user's upload history, most recent first.
func (s *FileService) List(ctx context.Context, userID string) ([]domain.UploadedFile, error) {
	return repo.ListUploadedFiles(ctx, s.DB, userID)
}

// URL maps a stored file name to its public path.
func (s *FileService) URL(storedName string) string {
	return "/uploads/" + storedName
}

// Analyze produces the assistant reply for a file attachment. It never
// fails: unreadable files degrade to a type-level description.
func (s *FileService) Analyze(ctx context.Context, file repo.FileRef, prompt string) string {
	kind := classifyFile(file)
	switch kind {
	case fileKindImage:
		return s.analyzeImage(ctx, file)
	case fileKindText:
		return s.analyzeText(ctx, file, prompt)
	default:
		return describeFile(kind, file)
	}
}

// analyzeImage reads the stored image and runs it through the Vision API.
func (s *FileService) analyzeImage(ctx context.Context, file repo.FileRef) string {
	data, err := os.ReadFile(s.localPath(file.URL))
	if err != nil {
		log.Warn().Err(err).Str("file", file.Name).Msg("files: cannot read image for analysis")
		return describeFile(fileKindImage, file)
	}
	return s.AI.AnalyzeImage(ctx, base64.StdEncoding.EncodeToString(data))
}

// analyzeText previews the stored text file and asks the AI to summarize it.
func (s *FileService) analyzeText(ctx context.Context, file repo.FileRef, prompt string) string {
	data, err := os.ReadFile(s.localPath(file.URL))
	if err != nil {
		log.Warn().Err(err).Str("file", file.Name).Msg("files: cannot read text for analysis")
		return describeFile(fileKindText, file)
	}

	preview := string(data)
	if utf8.RuneCountInString(preview) > textPreviewRunes {
		preview = string([]rune(preview)[:textPreviewRunes]) + "..."
	}

	q := fmt.Sprintf(
		"Pengguna mengunggah file teks bernama %q. Berikut isi awalnya:\n\n%s\n\n"+
			"Tolong analisis dan rangkum isi file ini dalam bahasa Indonesia.",
		file.Name, preview,
	)
	if strings.TrimSpace(prompt) != "" {
		q += "\n\nPertanyaan pengguna: " + prompt
	}
	return s.AI.GenerateReply(ctx, q)
}

// localPath resolves a public /uploads/ URL back to the on-disk location.
// Only the base name is honored so a crafted URL cannot escape UploadDir.
func (s *FileService) localPath(fileURL string) string {
	return filepath.Join(s.UploadDir, filepath.Base(fileURL))
}

// fileKind buckets uploads by analysis strategy.
type fileKind int

const (
	fileKindUnknown fileKind = iota
	fileKindImage
	fileKindText
	fileKindPDF
	fileKindWord
	fileKindArchive
	fileKindAPK
	fileKindAudio
	fileKindVideo
)

// classifyFile buckets an attachment by MIME type first, extension second.
func classifyFile(file repo.FileRef) fileKind {
	mt := strings.ToLower(file.Type)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Name), "."))

	switch {
	case strings.HasPrefix(mt, "image/"):
		return fileKindImage
	case strings.HasPrefix(mt, "audio/"):
		return fileKindAudio
	case strings.HasPrefix(mt, "video/"):
		return fileKindVideo
	case mt == "application/pdf" || ext == "pdf":
		return fileKindPDF
	case strings.Contains(mt, "msword") || strings.Contains(mt, "wordprocessingml") || ext == "doc" || ext == "docx":
		return fileKindWord
	case ext == "apk" || mt == "application/vnd.android.package-archive":
		return fileKindAPK
	case strings.Contains(mt, "zip") || strings.Contains(mt, "rar") || strings.Contains(mt, "7z") ||
		ext == "zip" || ext == "rar" || ext == "7z" || ext == "tar" || ext == "gz":
		return fileKindArchive
	case strings.HasPrefix(mt, "text/") || ext == "txt" || ext == "md" || ext == "csv" || ext == "json" || ext == "log":
		return fileKindText
	default:
		return fileKindUnknown
	}
}

// describeFile renders the localized type-level description used when the
// content itself cannot be analyzed.
func describeFile(kind fileKind, file repo.FileRef) string {
	name := file.Name
	if name == "" {
		name = "file"
	}

	switch kind {
	case fileKindImage:
		return fmt.Sprintf("## Analisis Gambar - AI PLANK.DEV\n\n"+
			"Saya menerima gambar %q namun tidak dapat membacanya untuk analisis detail saat ini. "+
			"Silakan unggah ulang atau ajukan pertanyaan spesifik tentang gambar tersebut.", name)
	case fileKindText:
		return fmt.Sprintf("## Analisis File Teks - AI PLANK.DEV\n\n"+
			"Saya menerima file teks %q namun tidak dapat membaca isinya saat ini. "+
			"Silakan salin bagian yang ingin Anda diskusikan ke dalam pesan.", name)
	case fileKindPDF:
		return fmt.Sprintf("## Analisis Dokumen PDF - AI PLANK.DEV\n\n"+
			"Saya menerima dokumen PDF %q. Ekstraksi teks PDF belum didukung, "+
			"jadi saya tidak bisa membaca isinya langsung. "+
			"Silakan salin bagian penting dari dokumen ke dalam pesan dan saya akan membantu menganalisisnya.", name)
	case fileKindWord:
		return fmt.Sprintf("## Analisis Dokumen Word - AI PLANK.DEV\n\n"+
			"Saya menerima dokumen Word %q. Saya belum bisa membaca isi dokumen Office secara langsung. "+
			"Silakan salin teks yang ingin dianalisis ke dalam pesan.", name)
	case fileKindArchive:
		return fmt.Sprintf("## Analisis Arsip - AI PLANK.DEV\n\n"+
			"Saya menerima file arsip %q. Saya tidak mengekstrak isi arsip, "+
			"namun saya bisa membantu jika Anda menjelaskan file apa saja yang ada di dalamnya.", name)
	case fileKindAPK:
		return fmt.Sprintf("## Analisis APK - AI PLANK.DEV\n\n"+
			"Saya menerima file aplikasi Android %q. Saya tidak menjalankan atau membongkar APK, "+
			"namun saya bisa menjawab pertanyaan umum tentang aplikasi Android, izin, dan keamanannya.", name)
	case fileKindAudio:
		return fmt.Sprintf("## Analisis Audio - AI PLANK.DEV\n\n"+
			"Saya menerima file audio %q. Transkripsi audio belum didukung. "+
			"Jelaskan isi audio tersebut dan saya akan membantu menganalisisnya.", name)
	case fileKindVideo:
		return fmt.Sprintf("## Analisis Video - AI PLANK.DEV\n\n"+
			"Saya menerima file video %q. Analisis video belum didukung. "+
			"Jelaskan isi video tersebut dan saya akan membantu sebisa mungkin.", name)
	default:
		return fmt.Sprintf("## Analisis File - AI PLANK.DEV\n\n"+
			"Saya menerima file %q dengan tipe yang belum saya kenali. "+
			"Jelaskan isi file tersebut dan saya akan membantu menganalisisnya.", name)
	}
}
