package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
)

func (s *Server) DiagnoseCertificate(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	business, err := s.businessRepo.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if business == nil {
		AbortWithError(c, businessdomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.certs.Diagnose(business)})
}

// EncryptCertificatePasswords migrates plaintext certificate passwords
// to encrypted storage. Idempotent.
func (s *Server) EncryptCertificatePasswords(c *gin.Context) {
	migrated, failed, err := s.certs.EncryptStoredPasswords(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"migrated": migrated,
		"failed":   failed,
	}})
}
