package core

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	MaxDatasetSize    int64 = 5 << 30
	MaxModelSize      int64 = 1 << 30
	MaxTaskInputSize  int64 = 50 << 20
	MaxNameLength           = 255
	maxInspectedFiles       = 100
	sniffLength             = 512
)

var (
	imageExtensions      = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}
	annotationExtensions = []string{".csv", ".txt", ".yml", ".yaml"}
	modelExtensions      = []string{".pt", ".pth"}

	// torch.save writes either a legacy pickle stream or a zip container.
	modelContentTypes = []string{"application/octet-stream", "application/x-pickle", "application/zip"}

	inputContentTypes = []string{"image/jpeg", "image/png", "application/pdf"}

	Architectures = []string{"yolo", "faster_rcnn", "ssd", "retinanet", "detr"}

	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.\s]+$`)
)

// FileContent is the body of an uploaded file. multipart.File satisfies it.
type FileContent interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     FileContent
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return Validationf("name is required")
	}
	if len(name) > MaxNameLength {
		return Validationf("name must be at most %d characters", MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return Validationf("invalid name '%s': only letters, digits, spaces, '_', '-' and '.' are allowed", name)
	}
	return nil
}

func extension(filename string) string {
	return strings.ToLower(path.Ext(filename))
}

func checkSize(upload Upload, limit int64) error {
	if upload.Content == nil || upload.Size <= 0 {
		return Validationf("file '%s' is empty", upload.Filename)
	}
	if upload.Size > limit {
		return Validationf("file '%s' exceeds the maximum size of %d bytes", upload.Filename, limit)
	}
	return nil
}

// sniff detects the content type from the first bytes of the upload and
// rewinds it.
func sniff(upload Upload) (string, error) {
	buf := make([]byte, sniffLength)
	n, err := io.ReadFull(upload.Content, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("error reading upload: %w", err)
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("error rewinding upload: %w", err)
	}
	contentType, _, _ := strings.Cut(http.DetectContentType(buf[:n]), ";")
	return contentType, nil
}

type archiveSummary struct {
	Images      int
	Annotations int
}

// inspectDatasetArchive checks that the upload is a zip archive holding at
// least one image and one annotation file, with no entry escaping the archive
// root.
func inspectDatasetArchive(upload Upload) (archiveSummary, error) {
	if err := checkSize(upload, MaxDatasetSize); err != nil {
		return archiveSummary{}, err
	}
	if extension(upload.Filename) != ".zip" {
		return archiveSummary{}, Validationf("dataset must be a .zip archive")
	}

	reader, err := zip.NewReader(upload.Content, upload.Size)
	if err != nil {
		return archiveSummary{}, Validationf("Bad zip file: %v", err)
	}

	var summary archiveSummary
	files, inspected := 0, 0
	for _, f := range reader.File {
		if strings.HasPrefix(f.Name, "/") || slices.Contains(strings.Split(f.Name, "/"), "..") {
			return archiveSummary{}, Validationf("archive entry '%s' has an unsafe path", f.Name)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		files++

		ext := extension(f.Name)
		switch {
		case slices.Contains(imageExtensions, ext):
			summary.Images++
		case slices.Contains(annotationExtensions, ext):
			summary.Annotations++
			if inspected < maxInspectedFiles && (ext == ".yml" || ext == ".yaml") {
				inspected++
				if err := checkYAML(f); err != nil {
					return archiveSummary{}, err
				}
			}
		}
	}

	if files == 0 {
		return archiveSummary{}, Validationf("archive contains no files")
	}
	if summary.Images == 0 {
		return archiveSummary{}, Validationf("archive contains no image files")
	}
	if summary.Annotations == 0 {
		return archiveSummary{}, Validationf("archive contains no annotation files")
	}

	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return archiveSummary{}, fmt.Errorf("error rewinding upload: %w", err)
	}
	return summary, nil
}

func checkYAML(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return Validationf("Bad zip file: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
	if err != nil {
		return Validationf("Bad zip file: %v", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Validationf("annotation file '%s' is not valid yaml: %v", f.Name, err)
	}
	return nil
}

func validateModelFile(upload Upload) error {
	if err := checkSize(upload, MaxModelSize); err != nil {
		return err
	}
	if !slices.Contains(modelExtensions, extension(upload.Filename)) {
		return Validationf("model file must have one of the extensions %v", modelExtensions)
	}

	contentType, err := sniff(upload)
	if err != nil {
		return err
	}
	if !slices.Contains(modelContentTypes, contentType) {
		return Validationf("model file has unsupported content type '%s'", contentType)
	}
	return nil
}

func validateTaskInput(upload Upload) (string, error) {
	if err := checkSize(upload, MaxTaskInputSize); err != nil {
		return "", err
	}

	contentType, err := sniff(upload)
	if err != nil {
		return "", err
	}
	if !slices.Contains(inputContentTypes, contentType) {
		return "", Validationf("input has unsupported content type '%s', expected one of %v", contentType, inputContentTypes)
	}
	return contentType, nil
}
