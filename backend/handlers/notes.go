package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"notes-api/backend/database"
	"notes-api/backend/middleware"
	"notes-api/backend/models"
)

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (req *noteRequest) validate() []fieldError {
	var errs []fieldError
	title := strings.TrimSpace(req.Title)
	content := strings.TrimSpace(req.Content)
	if len(title) < 1 || len(title) > 200 {
		errs = append(errs, fieldError{Field: "title", Message: "must be between 1 and 200 characters"})
	}
	if len(content) < 1 || len(content) > 10000 {
		errs = append(errs, fieldError{Field: "content", Message: "must be between 1 and 10000 characters"})
	}
	return errs
}

// GetNotes lists the authenticated user's notes, most recently updated first.
func GetNotes(w http.ResponseWriter, r *http.Request) {
	var notes []models.Note
	err := database.DB.
		Where("user_id = ?", middleware.UserID(r)).
		Order("updated_at DESC").
		Find(&notes).Error
	if err != nil {
		slog.Error("failed to list notes", "source", "notes", "user_id", middleware.UserID(r), "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func CreateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	note := models.Note{
		UserID:  middleware.UserID(r),
		Title:   strings.TrimSpace(req.Title),
		Content: strings.TrimSpace(req.Content),
	}
	if err := database.DB.Create(&note).Error; err != nil {
		slog.Error("failed to create note", "source", "notes", "user_id", note.UserID, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Note created successfully",
		"note":    note,
	})
}

// loadNote fetches the note from the path id and enforces ownership against
// the gate-resolved identity. Responds on failure and returns nil.
func loadNote(w http.ResponseWriter, r *http.Request) *models.Note {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		respondError(w, http.StatusNotFound, "Note not found")
		return nil
	}

	var note models.Note
	if err := database.DB.First(&note, uint(id)).Error; err != nil {
		respondError(w, http.StatusNotFound, "Note not found")
		return nil
	}

	if note.UserID != middleware.UserID(r) {
		slog.Warn("note access denied", "source", "notes", "user_id", middleware.UserID(r), "note_id", note.ID)
		respondError(w, http.StatusForbidden, "Access denied")
		return nil
	}
	return &note
}

func UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	note := loadNote(w, r)
	if note == nil {
		return
	}

	note.Title = strings.TrimSpace(req.Title)
	note.Content = strings.TrimSpace(req.Content)
	if err := database.DB.Save(note).Error; err != nil {
		slog.Error("failed to update note", "source", "notes", "note_id", note.ID, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Note updated successfully",
		"note":    note,
	})
}

func DeleteNote(w http.ResponseWriter, r *http.Request) {
	note := loadNote(w, r)
	if note == nil {
		return
	}

	if err := database.DB.Delete(note).Error; err != nil {
		slog.Error("failed to delete note", "source", "notes", "note_id", note.ID, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Note deleted successfully"})
}
