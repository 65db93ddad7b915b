package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/client"
)

// market runs the gRPC commands.
func market(ctx context.Context, g globals, cmd string, args []string) error {
	tf, err := loadToken()
	if err != nil && cmd != "product" {
		return err
	}
	cc, cli, err := g.dial(ctx, tf.AccessToken)
	if err != nil {
		return err
	}
	defer cc.Close()

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	switch cmd {
	case "product-add":
		name := fs.String("name", "", "product name")
		desc := fs.String("desc", "", "description")
		price := fs.Int64("price", 0, "price in cents")
		_ = fs.Parse(args)
		p, err := cli.CreateProduct(ctx, &api.CreateProductRequest{Name: *name, Description: *desc, Price: *price})
		if err != nil {
			return err
		}
		printJSON(p)

	case "product":
		id := fs.String("id", "", "product id")
		_ = fs.Parse(args)
		p, err := cli.GetProduct(ctx, &api.GetProductRequest{ID: *id})
		if err != nil {
			return err
		}
		printJSON(p)

	case "offer":
		product := fs.String("product", "", "product id")
		amount := fs.Int64("amount", 0, "amount in cents")
		msg := fs.String("m", "", "message to the owner")
		_ = fs.Parse(args)
		o, err := cli.CreateOffer(ctx, &api.CreateOfferRequest{ProductID: *product, Amount: *amount, Message: *msg})
		if err != nil {
			return err
		}
		printJSON(o)

	case "offers":
		sent := fs.Bool("sent", false, "list offers you made instead of received ones")
		_ = fs.Parse(args)
		box := api.BoxReceived
		if *sent {
			box = api.BoxSent
		}
		out, err := cli.ListOffers(ctx, &api.ListOffersRequest{Box: box})
		if err != nil {
			return err
		}
		printJSON(out.Offers)

	case "accept":
		id := fs.String("id", "", "offer id")
		_ = fs.Parse(args)
		out, err := cli.AcceptOffer(ctx, &api.AcceptOfferRequest{OfferID: *id})
		if err != nil {
			return err
		}
		fmt.Println(out.ConversationID)

	case "reject":
		id := fs.String("id", "", "offer id")
		_ = fs.Parse(args)
		if _, err := cli.RejectOffer(ctx, &api.RejectOfferRequest{OfferID: *id}); err != nil {
			return err
		}
		fmt.Println("ok")
	}
	return nil
}

// chat runs the HTTP commands.
func chat(ctx context.Context, g globals, cmd string, args []string) error {
	tf, err := loadToken()
	if err != nil {
		return err
	}
	hc, err := g.httpClient()
	if err != nil {
		return err
	}
	a := client.NewAPI(g.httpBase, tf.AccessToken, hc)

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	switch cmd {
	case "conversations":
		_ = fs.Parse(args)
		list, err := a.Conversations(ctx)
		if err != nil {
			return err
		}
		printJSON(list)

	case "messages":
		conv := fs.String("c", "", "conversation id")
		_ = fs.Parse(args)
		msgs, err := a.Messages(ctx, *conv)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Println(formatMessage(m))
		}

	case "send":
		conv := fs.String("c", "", "conversation id")
		text := fs.String("m", "", "message text")
		_ = fs.Parse(args)
		m, err := a.Send(ctx, *conv, *text)
		if err != nil {
			var se *client.StatusError
			if errors.As(err, &se) && se.RetryAfter > 0 {
				return fmt.Errorf("%w (retry in %s)", err, se.RetryAfter)
			}
			return err
		}
		fmt.Println(formatMessage(*m))
	}
	return nil
}

// watch prints a conversation and keeps printing new messages until ctx ends.
func watch(ctx context.Context, g globals, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	conv := fs.String("c", "", "conversation id")
	verbose := fs.Bool("v", false, "log connection events")
	_ = fs.Parse(args)
	if *conv == "" {
		return errors.New("need -c")
	}

	tf, err := loadToken()
	if err != nil {
		return err
	}
	hc, err := g.httpClient()
	if err != nil {
		return err
	}
	tlsCfg, err := tlsConfig(g.caPath, g.insecure)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if *verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	defer func() { _ = logger.Sync() }()

	var mu sync.Mutex
	printed := make(map[string]bool)
	s := client.NewSession(client.SessionConfig{
		UserID: tf.UserID,
		Token:  tf.AccessToken,
		WSURL:  wsURL(g.httpBase),
		API:    client.NewAPI(g.httpBase, tf.AccessToken, hc),
		Dialer: &websocket.Dialer{TLSClientConfig: tlsCfg, HandshakeTimeout: 10 * time.Second},
		OnUpdate: func(_ string, msgs []api.Message) {
			mu.Lock()
			defer mu.Unlock()
			for _, m := range msgs {
				if !printed[m.ID] {
					printed[m.ID] = true
					fmt.Println(formatMessage(m))
				}
			}
		},
		Logger: logger,
	})
	if err := s.Open(ctx, *conv); err != nil {
		return err
	}
	return s.Run(ctx)
}
