package notify

import (
	"fmt"
	"strings"
)

// Templates renders message bodies. Links point at AppURL.
type Templates struct {
	AppURL string
}

func (t Templates) url() string {
	if t.AppURL == "" {
		return "http://localhost:3000"
	}
	return strings.TrimRight(t.AppURL, "/")
}

func (t Templates) GameStart() string {
	return fmt.Sprintf("🎅 Ho Ho Ho! Secret Santa is ready!\n\n"+
		"Login at %s with your name and last 4 digits of this number to draw your person.\n\n"+
		"Don't forget to add your wish list! 🎁", t.url())
}

func (t Templates) Assignment(recipientName string) string {
	return fmt.Sprintf("🎄 You've drawn your Secret Santa!\n\n"+
		"You're shopping for: %s\n\n"+
		"View their wish list at %s/recipient-wishlist.html\n\n"+
		"Keep it secret! 🤫", recipientName, t.url())
}

func (t Templates) WishlistUpdate(recipientName string) string {
	return fmt.Sprintf("🎁 Good news!\n\n"+
		"%s just updated their wish list!\n\n"+
		"Check it out: %s/recipient-wishlist.html", recipientName, t.url())
}

func (t Templates) WishlistReminder() string {
	return fmt.Sprintf("🎅 Reminder: Your Secret Santa is waiting!\n\n"+
		"Help them pick the perfect gift by adding to your wish list at %s/wishlist.html", t.url())
}

func (t Templates) ShoppingReminder(recipientName string, daysRemaining int) string {
	return fmt.Sprintf("⏰ Just a reminder!\n\n"+
		"Secret Santa exchange is in %s!\n\n"+
		"Don't forget to shop for %s!\n\n"+
		"Their wish list: %s/recipient-wishlist.html", days(daysRemaining), recipientName, t.url())
}

func (t Templates) ExchangeDay(recipientName string) string {
	return fmt.Sprintf("🎉 Today's the day!\n\n"+
		"Secret Santa gift exchange is TODAY!\n\n"+
		"You're giving to: %s\n\n"+
		"Have fun! 🎅🎁", recipientName)
}

func (t Templates) Test(firstName string) string {
	if firstName == "" {
		firstName = "there"
	}
	return fmt.Sprintf("🧪 Test Message\n\n"+
		"Hi %s! This is a test message from your Secret Santa app.\n\n"+
		"If you received this, SMS notifications are working! ✅", firstName)
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// Segments is the number of 160-character SMS segments a body needs.
func Segments(body string) int {
	n := len([]rune(body))
	return (n + 159) / 160
}
