// Пакет attachstore — хранение PDF-вложений статей на диске.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// проверку PDF-сигнатуры, чтение и удаление вложений.
package attachstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// pdfMagic — сигнатура начала PDF-файла.
var pdfMagic = []byte("%PDF-")

// ErrNotPDF — содержимое не начинается с PDF-сигнатуры.
var ErrNotPDF = errors.New("содержимое не является PDF")

// ErrTooLarge — размер вложения превышает допустимый лимит.
var ErrTooLarge = errors.New("вложение превышает допустимый размер")

// Store — управление файлами вложений на диске.
type Store struct {
	// dataDir — корневая директория хранения вложений (RW_ATTACHMENT_DIR)
	dataDir string
	// maxBytes — максимальный размер одного вложения
	maxBytes int64
}

// SaveResult — результат сохранения вложения на диск.
type SaveResult struct {
	// AttachmentID — идентификатор вложения, он же имя файла без расширения
	AttachmentID string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт новый Store. Проверяет и создаёт директорию
// если она не существует.
func New(dataDir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию вложений %s: %w", dataDir, err)
	}

	return &Store{dataDir: dataDir, maxBytes: maxBytes}, nil
}

// Save записывает PDF из reader на диск с подсчётом SHA-256 на лету.
// Проверяет PDF-сигнатуру первых байт и ограничение размера.
// Имя файла: {uuid}.pdf — оригинальное имя клиента не используется.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Save(reader io.Reader) (*SaveResult, error) {
	// Проверяем сигнатуру до записи на диск
	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("ошибка чтения заголовка: %w", err)
	}
	if n < len(pdfMagic) || !bytes.Equal(head, pdfMagic) {
		return nil, ErrNotPDF
	}

	attachmentID := uuid.New().String()
	fullPath := s.fullPath(attachmentID)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(io.MultiReader(bytes.NewReader(head), reader), hasher)

	// +1 байт чтобы отличить "ровно лимит" от "превышен лимит"
	size, err := io.Copy(f, io.LimitReader(tee, s.maxBytes+1))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if size > s.maxBytes {
		f.Close()
		os.Remove(tmpPath)
		return nil, ErrTooLarge
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		AttachmentID: attachmentID,
		Size:         size,
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает вложение для чтения и возвращает файл с его размером.
// Вызывающий код обязан закрыть файл.
func (s *Store) Open(attachmentID string) (*os.File, int64, error) {
	f, err := os.Open(s.fullPath(attachmentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("вложение не найдено: %s", attachmentID)
		}
		return nil, 0, fmt.Errorf("ошибка открытия вложения %s: %w", attachmentID, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("ошибка получения информации о вложении %s: %w", attachmentID, err)
	}

	return f, info.Size(), nil
}

// Delete удаляет вложение с диска.
// Возвращает nil если файл уже не существует.
func (s *Store) Delete(attachmentID string) error {
	err := os.Remove(s.fullPath(attachmentID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления вложения %s: %w", attachmentID, err)
	}
	return nil
}

// Exists проверяет существование вложения на диске.
func (s *Store) Exists(attachmentID string) bool {
	_, err := os.Stat(s.fullPath(attachmentID))
	return err == nil
}

// DataDir возвращает путь к директории вложений.
func (s *Store) DataDir() string {
	return s.dataDir
}

// MaxBytes возвращает максимальный допустимый размер вложения.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

func (s *Store) fullPath(attachmentID string) string {
	return filepath.Join(s.dataDir, attachmentID+".pdf")
}
