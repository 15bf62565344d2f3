package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
)

func (s *Server) GenerateInvoice(c *gin.Context) {
	orderID, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.generator.Generate(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceRepo.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invoice == nil {
		AbortWithError(c, invoicedomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) GetInvoiceXML(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceRepo.FindByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if invoice == nil {
		AbortWithError(c, invoicedomain.ErrNotFound)
		return
	}
	if invoice.XML == "" {
		AbortWithError(c, invoicedomain.ErrNotTransmittable)
		return
	}

	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(invoice.XML))
}

func (s *Server) RecalculateInvoice(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.generator.RecalculateTotals(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) TransmitInvoice(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.transmitter.Submit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) QueryInvoice(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.transmitter.Query(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type cancelInvoiceRequest struct {
	Justification string `json:"justification"`
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req cancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.transmitter.Cancel(c.Request.Context(), id, req.Justification)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
