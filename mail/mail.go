// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"mime"
	stdmail "net/mail"
	"time"

	"github.com/CrawX/mailferry/domain"

	"github.com/emersion/go-message/charset"
)

// IdHeaders are the headers whose values identify a message independently of
// any server-assigned id.
var IdHeaders = []string{"Received", "Message-Id"}

var ErrNoIdHeaders = errors.New("Received and Message-Id header header not found")

func MailHeaderInfos(rawMail []byte) (string, string, error) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(rawMail))
	if err != nil {
		return "", "", fmt.Errorf("could not parse mail: %w", err)
	}

	messageIdHeader := msg.Header["Message-Id"]
	receivedHeader := msg.Header["Received"]
	if len(receivedHeader) == 0 && len(messageIdHeader) == 0 {
		return "", "", ErrNoIdHeaders
	}

	subject, err := decodeSubject(msg.Header.Get("Subject"))
	if err != nil {
		return "", "", err
	}

	mailIdHash, err := hash([][]string{messageIdHeader, receivedHeader})
	if err != nil {
		return "", "", fmt.Errorf("could not hash headers: %w", err)
	}

	return subject, mailIdHash, nil
}

// ContentHash identifies rawMail by its id headers, or by its full content
// when it has none or cannot be parsed. rawMail may be a header block only as
// long as the id headers are present in it.
func ContentHash(rawMail []byte) string {
	_, mailIdHash, err := MailHeaderInfos(rawMail)
	if err == nil {
		return mailIdHash
	}

	return fmt.Sprintf("%x", sha256.Sum256(rawMail))
}

// Subject returns the decoded subject of rawMail, or an empty string.
func Subject(rawMail []byte) string {
	msg, err := stdmail.ReadMessage(bytes.NewReader(rawMail))
	if err != nil {
		return ""
	}

	subject, err := decodeSubject(msg.Header.Get("Subject"))
	if err != nil {
		return msg.Header.Get("Subject")
	}
	return subject
}

// Date returns the Date header of rawMail, or the zero time when it is missing
// or malformed.
func Date(rawMail []byte) time.Time {
	msg, err := stdmail.ReadMessage(bytes.NewReader(rawMail))
	if err != nil {
		return time.Time{}
	}

	date, err := msg.Header.Date()
	if err != nil {
		return time.Time{}
	}
	return date
}

func decodeSubject(subjectHeader string) (string, error) {
	dec := &mime.WordDecoder{
		CharsetReader: charset.Reader,
	}
	subject, err := dec.DecodeHeader(subjectHeader)
	if err != nil {
		return "", fmt.Errorf("could decode subject header: %w", err)
	}
	return subject, nil
}

func ShortSubject(subject string) string {
	runes := []rune(subject)
	if len(runes) > 30 {
		subject = string(runes[:30]) + "..."
	}
	return subject
}

func ImapFingerprint(uidValidity uint32, uid uint32) domain.Fingerprint {
	return domain.Fingerprint(fmt.Sprintf("imap:%d:%d", uidValidity, uid))
}

func UidlFingerprint(uidl string) domain.Fingerprint {
	return domain.Fingerprint("uidl:" + uidl)
}

func HashFingerprint(contentHash string) domain.Fingerprint {
	return domain.Fingerprint("hash:" + contentHash)
}

func hash(input [][]string) (string, error) {
	sha := sha256.New()
	for _, i := range input {
		for _, ii := range i {
			_, err := sha.Write([]byte(ii))
			if err != nil {
				return "", fmt.Errorf("could not hash: %w", err)
			}
		}
	}

	return fmt.Sprintf("%x", sha.Sum(nil)), nil
}
