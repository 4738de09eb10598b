package site

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/cosmic-portfolio/internal/cosmos"
)

func (s *Server) registerPages(r *gin.RouterGroup) {
	r.GET("/", s.index)
	r.GET("/contact-form", s.contactForm)
	r.GET("/work-content", s.workContent)
	r.GET("/education-content", s.educationContent)
	r.POST("/contact", s.contact)
	r.GET("/privacy", s.privacy)
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":     s.content.Name,
		"content":   s.content,
		"particles": cosmos.NewParticles(cosmos.ParticleCount, nil),
	})
}

// HTMX contact form fragment.
func (s *Server) contactForm(c *gin.Context) {
	c.HTML(http.StatusOK, "contact.html", gin.H{
		"title": "Contact Me",
	})
}

func (s *Server) workContent(c *gin.Context) {
	c.HTML(http.StatusOK, "work-content.html", gin.H{
		"entries": s.content.Work,
	})
}

func (s *Server) educationContent(c *gin.Context) {
	c.HTML(http.StatusOK, "education-content.html", gin.H{
		"entries": s.content.Education,
	})
}

// contact answers with a success or error fragment; htmx swaps it in place of
// the form, so both are 200.
func (s *Server) contact(c *gin.Context) {
	msg := ContactMessage{
		Name:    strings.TrimSpace(c.PostForm("fullName")),
		Email:   strings.TrimSpace(c.PostForm("email")),
		Message: strings.TrimSpace(c.PostForm("message")),
	}
	if err := msg.Validate(); err != nil {
		c.HTML(http.StatusOK, "contact-error.html", gin.H{
			"error": "Please check the form: " + err.Error() + ".",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	if err := s.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrMailDisabled) {
			s.log.Warn("contact.mail.disabled")
		} else {
			s.log.Error("contact.mail.send", "err", err)
		}
		c.HTML(http.StatusOK, "contact-error.html", gin.H{
			"error": "Sorry, there was an error sending your message. Please try again later.",
		})
		return
	}

	s.log.Info("contact.mail.sent")
	c.HTML(http.StatusOK, "contact-success.html", gin.H{
		"success": "Thank you for your message! I'll get back to you soon.",
	})
}

func (s *Server) privacy(c *gin.Context) {
	c.HTML(http.StatusOK, "privacy.html", gin.H{
		"title":     "Privacy Policy",
		"retention": s.opts.VisitRetention.String(),
	})
}
