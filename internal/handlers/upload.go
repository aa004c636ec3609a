package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vipspatchbay/internal/store"
	"vipspatchbay/internal/utils"
)

// Upload handles `POST /VIPS/upload`: each `files[]` part becomes a new
// InputImage in the Image Store, named `<uuid><ext>` and registered in
// `input_images`, per spec.md §3.
func (h *VIPSHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		utils.SendValidationError(c, err)
		return
	}

	files := form.File["files[]"]
	if len(files) == 0 {
		utils.SendValidationError(c, fmt.Errorf("no files provided under files[]"))
		return
	}

	ctx := c.Request.Context()
	for _, fh := range files {
		if err := h.storeOneUpload(ctx, fh); err != nil {
			slog.Error("upload failed", "filename", fh.Filename, "error", err)
			utils.SendInternalError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Upload complete."})
}

// storeOneUpload writes one multipart part to the Image Store root under
// a freshly minted UUID, then registers it in input_images. The file
// must exist on disk before the database row is created, matching the
// InputImage lifecycle invariant in spec.md §3.
func (h *VIPSHandler) storeOneUpload(ctx context.Context, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(src, head)
	head = head[:n]

	ext := store.ExtensionFor(store.DetectFormat(head))

	id := uuid.New()
	dest := h.store.OriginalPath(id, ext)

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := out.Write(head); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}

	if err := h.images.Register(ctx, id, fh.Filename); err != nil {
		_ = store.Remove(dest)
		return fmt.Errorf("register %q: %w", fh.Filename, err)
	}
	return nil
}
