package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

const qrSize = 256

type PaymentSettings struct {
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Branch        string `json:"branch,omitempty"`
	CODEnabled    bool   `json:"codEnabled"`
}

func (p PaymentSettings) Validate() error {
	filled := 0
	for _, f := range []string{p.BankName, p.AccountNumber, p.AccountName} {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	if filled != 0 && filled != 3 {
		return errors.New("bankName, accountNumber and accountName must be set together")
	}
	return nil
}

func (p PaymentSettings) HasBank() bool {
	return p.BankName != "" && p.AccountNumber != "" && p.AccountName != ""
}

// TransferPayload is the text encoded in the bank-transfer QR code.
func (p PaymentSettings) TransferPayload(amount *decimal.Decimal, memo string) string {
	parts := []string{
		"BANK:" + p.BankName,
		"ACC:" + p.AccountNumber,
		"NAME:" + strings.ToUpper(p.AccountName),
	}
	if amount != nil {
		parts = append(parts, "AMOUNT:"+amount.StringFixed(0))
	}
	if memo != "" {
		parts = append(parts, "MEMO:"+memo)
	}
	return strings.Join(parts, ";")
}

type PaymentInfo struct {
	PaymentSettings
	QRCode string `json:"qrCode,omitempty"`
}

type PaymentQR struct {
	Payload string `json:"payload"`
	QRCode  string `json:"qrCode"`
	Amount  string `json:"amount,omitempty"`
	Memo    string `json:"memo,omitempty"`
}

func encodeQR(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func (s *ContentHandler) loadPaymentSettings(ctx context.Context) (PaymentSettings, error) {
	settings := PaymentSettings{CODEnabled: true}
	if _, err := shared.LoadSetting(s.db.WithContext(ctx), PaymentSettingsKey, &settings); err != nil {
		return settings, status.Errorf(codes.Internal, "Failed to load payment settings: %v", err)
	}
	return settings, nil
}

// GetPaymentSettings returns the bank details and, when they are complete, a generic transfer QR.
func (s *ContentHandler) GetPaymentSettings(ctx context.Context) (*PaymentInfo, error) {
	settings, err := s.loadPaymentSettings(ctx)
	if err != nil {
		return nil, err
	}

	info := &PaymentInfo{PaymentSettings: settings}
	if settings.HasBank() {
		qr, err := encodeQR(settings.TransferPayload(nil, ""))
		if err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to render QR code: %v", err)
		}
		info.QRCode = qr
	}
	return info, nil
}

// PaymentQRFor renders a QR for a specific amount, using memo as the transfer note.
func (s *ContentHandler) PaymentQRFor(ctx context.Context, amount decimal.Decimal, memo string) (*PaymentQR, error) {
	settings, err := s.loadPaymentSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.HasBank() {
		return nil, status.Errorf(codes.FailedPrecondition, "Chưa cấu hình tài khoản ngân hàng")
	}

	payload := settings.TransferPayload(&amount, memo)
	qr, err := encodeQR(payload)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to render QR code: %v", err)
	}
	return &PaymentQR{Payload: payload, QRCode: qr, Amount: amount.StringFixed(0), Memo: memo}, nil
}
