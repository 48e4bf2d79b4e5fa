package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"gpurental-backend/internal/logger"
)

type emailService struct {
	apiKey    string
	fromName  string
	fromEmail string
	enabled   bool
}

func NewEmailService(apiKey, fromName, fromEmail string, enabled bool) EmailService {
	return &emailService{
		apiKey:    apiKey,
		fromName:  fromName,
		fromEmail: fromEmail,
		enabled:   enabled,
	}
}

func (s *emailService) SendRentalCreatedNotification(ctx context.Context, email, rentalID, gpuModel string, hours int32, totalPrice string) error {
	subject := fmt.Sprintf("Rental %s confirmed", rentalID)
	plainText := fmt.Sprintf(
		"Your rental of %s for %d hour(s) is confirmed.\n\nRental ID: %s\nTotal escrowed: %s ETH\n\nFunds are held in escrow until the rental is verified and resolved.",
		gpuModel, hours, rentalID, totalPrice)
	htmlContent := fmt.Sprintf(
		"<html><body><h2>Rental Confirmed</h2><p>Your rental of <strong>%s</strong> for %d hour(s) is confirmed.</p><p>Rental ID: <code>%s</code><br>Total escrowed: <strong>%s ETH</strong></p><p>Funds are held in escrow until the rental is verified and resolved.</p></body></html>",
		gpuModel, hours, rentalID, totalPrice)

	return s.send(email, subject, plainText, htmlContent)
}

func (s *emailService) SendRentalResolvedNotification(ctx context.Context, email, rentalID, gpuModel, providerShare, renterShare string) error {
	subject := fmt.Sprintf("Rental %s resolved", rentalID)
	plainText := fmt.Sprintf(
		"Your rental of %s has been resolved.\n\nRental ID: %s\nPaid to provider: %s ETH\nRefunded to you: %s ETH",
		gpuModel, rentalID, providerShare, renterShare)
	htmlContent := fmt.Sprintf(
		"<html><body><h2>Rental Resolved</h2><p>Your rental of <strong>%s</strong> has been resolved.</p><p>Rental ID: <code>%s</code><br>Paid to provider: <strong>%s ETH</strong><br>Refunded to you: <strong>%s ETH</strong></p></body></html>",
		gpuModel, rentalID, providerShare, renterShare)

	return s.send(email, subject, plainText, htmlContent)
}

func (s *emailService) send(to, subject, plainText, htmlContent string) error {
	if !s.enabled {
		logger.Debug("Email sending disabled, skipping", "to", to, "subject", subject)
		return nil
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, plainText, htmlContent)

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
