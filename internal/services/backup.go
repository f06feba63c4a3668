package services

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipdigest/backend/internal/config"
	"github.com/jlaffaye/ftp"
)

const backupRetentionDays = 14

// BackupService dumps the database nightly and optionally ships the
// dump to an FTP server for offsite retention.
type BackupService struct {
	cfg      *config.Config
	interval time.Duration
	stopCh   chan struct{}
}

func NewBackupService(cfg *config.Config, interval time.Duration) *BackupService {
	return &BackupService{
		cfg:      cfg,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *BackupService) Start() {
	if !s.cfg.BackupEnabled {
		log.Println("BackupService: disabled, not starting")
		return
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runBackup()
			case <-s.stopCh:
				return
			}
		}
	}()

	log.Printf("BackupService: started, interval %v", s.interval)
}

func (s *BackupService) Stop() {
	close(s.stopCh)
}

func (s *BackupService) runBackup() {
	if err := os.MkdirAll(s.cfg.BackupDir, 0o750); err != nil {
		log.Printf("BackupService: failed to create backup dir: %v", err)
		return
	}

	filename := fmt.Sprintf("clipdigest-%s.sql", time.Now().UTC().Format("20060102-150405"))
	localPath := filepath.Join(s.cfg.BackupDir, filename)

	if err := s.createDatabaseBackup(localPath); err != nil {
		log.Printf("BackupService: backup failed: %v", err)
		return
	}
	log.Printf("BackupService: created %s", filename)

	if s.cfg.FTPHost != "" {
		if err := s.uploadToFTP(localPath, filename); err != nil {
			log.Printf("BackupService: FTP upload failed: %v", err)
		}
	}

	s.cleanOldBackups()
}

func (s *BackupService) createDatabaseBackup(destPath string) error {
	cmd := exec.Command("pg_dump",
		"-h", s.cfg.DBHost,
		"-p", fmt.Sprintf("%d", s.cfg.DBPort),
		"-U", s.cfg.DBUser,
		"-d", s.cfg.DBName,
		"-f", destPath,
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+s.cfg.DBPassword)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err.Error(), string(output))
	}
	return nil
}

// uploadToFTP uploads a file to the configured FTP server
func (s *BackupService) uploadToFTP(localPath, filename string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.FTPHost, s.cfg.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("FTP connection failed: %v", err)
	}
	defer conn.Quit()

	if err := conn.Login(s.cfg.FTPUsername, s.cfg.FTPPassword); err != nil {
		return fmt.Errorf("FTP login failed: %v", err)
	}

	if s.cfg.FTPPath != "" && s.cfg.FTPPath != "/" {
		if err := conn.ChangeDir(s.cfg.FTPPath); err != nil {
			conn.MakeDir(s.cfg.FTPPath)
			if err := conn.ChangeDir(s.cfg.FTPPath); err != nil {
				return fmt.Errorf("FTP directory change failed: %v", err)
			}
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %v", err)
	}
	defer file.Close()

	if err := conn.Stor(filename, file); err != nil {
		return fmt.Errorf("FTP upload failed: %v", err)
	}

	log.Printf("BackupService: uploaded %s to FTP %s", filename, s.cfg.FTPHost)
	return nil
}

// cleanOldBackups removes local and FTP dumps past the retention window
func (s *BackupService) cleanOldBackups() {
	cutoff := time.Now().AddDate(0, 0, -backupRetentionDays)

	files, err := os.ReadDir(s.cfg.BackupDir)
	if err != nil {
		return
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(s.cfg.BackupDir, file.Name()))
			log.Printf("BackupService: deleted old backup %s", file.Name())
		}
	}

	if s.cfg.FTPHost != "" {
		s.cleanOldFTPBackups(cutoff)
	}
}

func (s *BackupService) cleanOldFTPBackups(cutoff time.Time) {
	addr := fmt.Sprintf("%s:%d", s.cfg.FTPHost, s.cfg.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return
	}
	defer conn.Quit()

	if err := conn.Login(s.cfg.FTPUsername, s.cfg.FTPPassword); err != nil {
		return
	}

	if s.cfg.FTPPath != "" && s.cfg.FTPPath != "/" {
		conn.ChangeDir(s.cfg.FTPPath)
	}

	entries, err := conn.List("")
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.Type == ftp.EntryTypeFile && entry.Time.Before(cutoff) && filepath.Ext(entry.Name) == ".sql" {
			conn.Delete(entry.Name)
			log.Printf("BackupService: deleted old FTP backup %s", entry.Name)
		}
	}
}
