package transport

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

var GoChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func channelTransport(logger watermill.LoggerAdapter) Transport {
	pub, sub := GoChannelFactory(gochannel.Config{}, logger)
	return Transport{
		Publisher:  pub,
		Subscriber: sub,
	}
}
